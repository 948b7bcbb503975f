package restic

import (
	"context"
	"errors"
	"fmt"
)

// Init creates the repository.
func (c *Client) Init(ctx context.Context) (*Initialized, error) {
	var results []*Initialized
	err := c.ExecJSON(ctx, NewArgs("init"), InitVariants, func(msg Message) {
		if m, ok := msg.(*Initialized); ok {
			results = append(results, m)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: init returned %d results", ErrUnexpectedResponse, len(results))
	}
	return results[0], nil
}

// InitIfNotExists creates the repository unless it can already be opened.
// It returns nil when the repository existed.
func (c *Client) InitIfNotExists(ctx context.Context) (*Initialized, error) {
	ok, err := c.CanOpen(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	result, err := c.Init(ctx)
	if err != nil {
		return nil, errors.Join(errors.New("restic: repository does not exist and could not be initialized"), err)
	}
	return result, nil
}

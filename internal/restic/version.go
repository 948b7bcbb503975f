package restic

import (
	"context"
	"fmt"
)

// Version queries the restic binary version.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	var results []*Version
	err := c.ExecJSON(ctx, NewArgs("version"), VersionVariants, func(msg Message) {
		if m, ok := msg.(*Version); ok {
			results = append(results, m)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: version returned %d results", ErrUnexpectedResponse, len(results))
	}
	return results[0], nil
}

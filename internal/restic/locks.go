package restic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// lockIDLength is the length of a hex encoded lock id.
const lockIDLength = 64

// LockInfo is the content of a lock file.
type LockInfo struct {
	ID        string    `json:"-"`
	Time      time.Time `json:"time"`
	Exclusive bool      `json:"exclusive"`
	Hostname  string    `json:"hostname"`
	Username  string    `json:"username"`
	PID       int       `json:"pid"`
}

// LockIDs lists the ids of all locks in the repository. Lines that are not
// lock ids are logged and skipped.
func (c *Client) LockIDs(ctx context.Context) ([]string, error) {
	out, err := c.stdout(ctx, NewArgs("list").Flag("json").Value("locks"))
	if err != nil {
		return nil, err
	}

	var ids []string
	for line := range strings.Lines(out) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) != lockIDLength {
			c.logger.Warn("restic: unexpected line in lock list", "line", line)
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

// Lock reads a single lock.
func (c *Client) Lock(ctx context.Context, id string) (*LockInfo, error) {
	out, err := c.stdout(ctx, NewArgs("cat").Flag("json").Values("lock", id))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrUnexpectedResponse, id, err)
	}
	info.ID = id
	return &info, nil
}

// Locks reads every lock in the repository. Locks removed between listing
// and reading are skipped.
func (c *Client) Locks(ctx context.Context) ([]*LockInfo, error) {
	ids, err := c.LockIDs(ctx)
	if err != nil {
		return nil, err
	}
	locks := make([]*LockInfo, 0, len(ids))
	for _, id := range ids {
		info, err := c.Lock(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("restic: failed to read lock", "lock", id, "error", err)
			continue
		}
		locks = append(locks, info)
	}
	return locks, nil
}

// Unlock removes stale locks. With removeAll, every lock is removed.
func (c *Client) Unlock(ctx context.Context, removeAll bool) error {
	args := NewArgs("unlock")
	if removeAll {
		args.Flag("remove-all")
	}
	_, err := c.stdout(ctx, args)
	return err
}

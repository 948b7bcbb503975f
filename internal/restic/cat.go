package restic

import (
	"context"
	"errors"
	"strings"
)

// Cat runs "restic cat" and returns everything written to stdout.
func (c *Client) Cat(ctx context.Context, what ...string) (string, error) {
	return c.stdout(ctx, NewArgs("cat").Values(what...))
}

// CanOpen probes the repository by reading its config file. A missing
// repository is reported as false with a nil error; any other failure
// (wrong password, lock, I/O) is returned.
func (c *Client) CanOpen(ctx context.Context) (bool, error) {
	_, err := c.Cat(ctx, "config")
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrRepositoryNotFound):
		return false, nil
	default:
		return false, err
	}
}

// stdout runs args and collects stdout. Stderr lines are logged.
func (c *Client) stdout(ctx context.Context, args *Args) (string, error) {
	var out strings.Builder
	err := c.Exec(ctx, args, func(line Line) {
		if line.Origin == Stderr {
			c.logger.Debug("restic: stderr", "verb", args.Verb(), "line", line.Text)
			return
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(line.Text)
	})
	return out.String(), err
}

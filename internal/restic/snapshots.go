package restic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is one entry of "restic snapshots --json".
type Snapshot struct {
	ID       string    `json:"id"`
	ShortID  string    `json:"short_id"`
	Time     time.Time `json:"time"`
	Hostname string    `json:"hostname"`
	Username string    `json:"username"`
	Paths    []string  `json:"paths"`
	Tags     []string  `json:"tags,omitempty"`
}

// Snapshots lists the snapshots in the repository.
func (c *Client) Snapshots(ctx context.Context) ([]Snapshot, error) {
	out, err := c.stdout(ctx, NewArgs("snapshots").Flag("json"))
	if err != nil {
		return nil, err
	}
	var snapshots []Snapshot
	if err := json.Unmarshal([]byte(out), &snapshots); err != nil {
		return nil, fmt.Errorf("%w: snapshots: %w", ErrUnexpectedResponse, err)
	}
	return snapshots, nil
}

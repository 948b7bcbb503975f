package restic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Variants is the closed set of messages a command may print, keyed by
// message_type. Every set accepts exit_error.
type Variants map[string]func() Message

// NewVariants builds a set from constructors. exit_error is always added.
func NewVariants(constructors ...func() Message) Variants {
	v := Variants{
		(*ExitMessage)(nil).MessageType(): func() Message { return &ExitMessage{} },
	}
	for _, fn := range constructors {
		v[fn().MessageType()] = fn
	}
	return v
}

// Variant sets per command.
var (
	BackupVariants = NewVariants(
		func() Message { return &Status{} },
		func() Message { return &VerboseStatus{} },
		func() Message { return &Summary{} },
		func() Message { return &BackupError{} },
	)
	InitVariants    = NewVariants(func() Message { return &Initialized{} })
	VersionVariants = NewVariants(func() Message { return &Version{} })
)

// Decode parses one JSON line against set. A line that is not valid JSON
// fails with ErrMalformedMessage; a message_type outside set fails with
// ErrUnknownMessage.
func Decode(line string, set Variants) (Message, error) {
	var envelope struct {
		MessageType string `json:"message_type"`
	}
	if err := json.Unmarshal([]byte(line), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	newMessage, ok := set[envelope.MessageType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, envelope.MessageType)
	}

	msg := newMessage()
	if err := json.Unmarshal([]byte(line), msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, envelope.MessageType, err)
	}
	return msg, nil
}

// ExecJSON runs restic with --json and calls onMessage for every line that
// decodes against set. Empty lines are skipped, lines that are not JSON
// objects are logged at debug level, and lines that fail to decode are
// logged as warnings. None of these fail the invocation.
//
// When restic exits non-zero after printing an exit_error message, its text
// is attached to the returned *ExitError.
func (c *Client) ExecJSON(ctx context.Context, args *Args, set Variants, onMessage func(Message)) error {
	var exitMsg *ExitMessage

	err := c.Exec(ctx, args.Clone().Flag("json"), func(line Line) {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			return
		}
		if !strings.HasPrefix(text, "{") {
			c.logger.Debug("restic: output", "stream", line.Origin.String(), "line", text)
			return
		}

		msg, err := Decode(text, set)
		if err != nil {
			c.logger.Warn("restic: failed to parse message",
				"stream", line.Origin.String(),
				"line", text,
				"error", err,
			)
			return
		}
		if m, ok := msg.(*ExitMessage); ok {
			exitMsg = m
		}
		if onMessage != nil {
			onMessage(msg)
		}
	})

	var exitErr *ExitError
	if exitMsg != nil && errors.As(err, &exitErr) && exitErr.Message == "" {
		exitErr.Message = exitMsg.Message
	}
	return err
}

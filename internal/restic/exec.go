package restic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// maxLineSize bounds a single output line. Status lines listing the files
// currently being processed can get long.
const maxLineSize = 4 << 20

// Origin identifies the output stream a line was read from.
type Origin int

const (
	Stdout Origin = iota
	Stderr
)

func (o Origin) String() string {
	if o == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is a single line of process output, without its terminator.
type Line struct {
	Text   string
	Origin Origin
}

// Exec runs restic with args and calls onLine for every line written to
// stdout or stderr. Lines of one stream arrive in order; the two streams
// interleave arbitrarily. onLine is called from the calling goroutine, one
// line at a time, and is never called after Exec returns.
//
// Cancelling ctx kills the process. Exec then stops delivering lines,
// reaps the process and returns an error wrapping ErrKilled.
//
// A nil error means restic exited with code 0. Other outcomes are a
// *SpawnError, a *StreamError, ErrKilled or an *ExitError from Classify.
func (c *Client) Exec(ctx context.Context, args *Args, onLine func(Line)) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrKilled, context.Cause(ctx))
	}
	argv := args.Build()

	path, err := exec.LookPath(c.binary)
	if err != nil {
		return &SpawnError{Binary: c.binary, Err: err}
	}

	cmd := exec.Command(path, argv...) //nolint:gosec // arguments are built by Args, not a shell
	cmd.Env = c.env
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &SpawnError{Binary: c.binary, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &SpawnError{Binary: c.binary, Err: err}
	}

	c.logger.Debug("restic: exec", "binary", path, "args", argv)
	if err := cmd.Start(); err != nil {
		return &SpawnError{Binary: c.binary, Err: err}
	}

	lines := make(chan Line)
	streamErrs := make(chan *StreamError, 2)
	stop := make(chan struct{})

	var readers sync.WaitGroup
	readers.Add(2)
	go readLines(stdout, Stdout, lines, streamErrs, stop, &readers)
	go readLines(stderr, Stderr, lines, streamErrs, stop, &readers)
	go func() {
		readers.Wait()
		close(lines)
	}()

	var (
		killed    bool
		streamErr *StreamError
	)

read:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break read
			}
			if ctx.Err() != nil {
				killed = c.kill(cmd)
				break read
			}
			if onLine != nil {
				onLine(line)
			}
		case streamErr = <-streamErrs:
			break read
		case <-ctx.Done():
			killed = c.kill(cmd)
			break read
		}
	}
	close(stop)

	if streamErr == nil {
		select {
		case streamErr = <-streamErrs:
		default:
		}
	}
	if streamErr != nil {
		c.kill(cmd)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-waitErr:
	case <-ctx.Done():
		if !killed {
			killed = c.kill(cmd)
		}
		<-waitErr
	}

	// Wait closed the pipes; the readers are unblocked and exit.
	for range lines {
	}

	switch {
	case streamErr != nil:
		return streamErr
	case killed:
		return fmt.Errorf("%w: %w", ErrKilled, context.Cause(ctx))
	}

	state := cmd.ProcessState
	if state == nil || state.ExitCode() < 0 {
		return ErrKilled
	}
	return Classify(state.ExitCode())
}

// kill terminates the process. It reports false if the process had
// already exited.
func (c *Client) kill(cmd *exec.Cmd) bool {
	if err := cmd.Process.Kill(); err != nil {
		if !errors.Is(err, os.ErrProcessDone) {
			c.logger.Warn("restic: failed to kill process", "pid", cmd.Process.Pid, "error", err)
		}
		return false
	}
	return true
}

func readLines(r io.Reader, origin Origin, out chan<- Line, errs chan<- *StreamError, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		select {
		case out <- Line{Text: scanner.Text(), Origin: origin}:
		case <-stop:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-stop:
			// Pipe closed by Wait after a kill.
		default:
			errs <- &StreamError{Origin: origin, Err: err}
		}
	}
}

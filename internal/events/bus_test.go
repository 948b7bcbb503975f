package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
)

func TestBus_Broadcast(t *testing.T) {
	t.Parallel()

	b := NewBus()
	a, cancelA := b.Subscribe(4)
	defer cancelA()
	c, cancelC := b.Subscribe(4)
	defer cancelC()

	b.Queued(jobs.WorkItem{Name: "daily", Source: jobs.SourceCron})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		require.Equal(t, JobQueued, e.Type)
		require.Equal(t, "daily", e.Job)
		require.Equal(t, jobs.SourceCron, e.Source)
		require.False(t, e.Time.IsZero())
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	b := NewBus()
	_, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 10 {
			b.StateChanged(host.StateRunning)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Equal(t, uint64(9), b.Dropped())
}

func TestBus_Unsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBus()
	ch, cancel := b.Subscribe(1)
	require.Equal(t, 1, b.Subscribers())

	cancel()
	cancel()
	require.Equal(t, 0, b.Subscribers())

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.GenerationStarted(2, nil)
}

func TestBus_ConcurrentPublishAndCancel(t *testing.T) {
	t.Parallel()

	b := NewBus()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		_, cancel := b.Subscribe(2)
		go func() {
			defer wg.Done()
			for range 50 {
				b.Rejected("daily", jobs.SourceAPI, errors.New("full"))
			}
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()
	require.Equal(t, 0, b.Subscribers())
}

func TestBus_RunEvents(t *testing.T) {
	t.Parallel()

	b := NewBus()
	ch, cancel := b.Subscribe(8)
	defer cancel()

	run := &jobs.Run{ID: "r1", Job: "daily", Source: jobs.SourceAPI}
	b.RunStarted(run)
	b.StepFinished(run, jobs.StepResult{Step: jobs.StepBackup, Status: jobs.StatusSucceeded, SnapshotID: "abc"})
	run.Status = jobs.StatusSucceeded
	b.RunFinished(run)

	started, step, finished := <-ch, <-ch, <-ch
	require.Equal(t, JobStarted, started.Type)
	require.Equal(t, "r1", started.RunID)
	require.Equal(t, StepFinished, step.Type)
	require.Equal(t, "backup", step.Step)
	require.Equal(t, "abc", step.SnapshotID)
	require.Equal(t, JobFinished, finished.Type)
	require.Equal(t, "succeeded", finished.Status)
}

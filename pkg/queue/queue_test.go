package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/dronebridge/pkg/command"
	"github.com/germanamz/dronebridge/pkg/session/sessiontest"
)

func newQueue(fake *sessiontest.Fake) *Queue {
	ex := &command.Executor{Remote: fake}
	return New(fake, ex.Execute, nil)
}

func TestSubmit_QueuesWhileNotStarted(t *testing.T) {
	fake := sessiontest.New()
	q := newQueue(fake)

	queued := q.Submit(context.Background(), command.Arm())

	assert.True(t, queued)
	assert.Equal(t, 1, q.Len())
	assert.Empty(t, fake.Calls())
}

func TestSubmit_RunsImmediatelyWhenStarted(t *testing.T) {
	fake := sessiontest.New()
	fake.SetStarted(true)
	q := newQueue(fake)

	queued := q.Submit(context.Background(), command.Arm())

	assert.False(t, queued)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []string{"arm(true)"}, fake.Calls())
}

func TestOnStarted_FlushesInOrderExactlyOnce(t *testing.T) {
	fake := sessiontest.New()
	q := newQueue(fake)
	ctx := context.Background()

	takeoff, ok := command.TakeOff(5)
	require.True(t, ok)

	q.Submit(ctx, command.Arm())
	q.Submit(ctx, takeoff)

	require.NoError(t, fake.Register())
	n := q.OnStarted(ctx)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"arm(true)", "takeOff(5)"}, fake.Calls())
	assert.Equal(t, 0, q.Len())

	// A second transition has nothing left to replay.
	assert.Equal(t, 0, q.OnStarted(ctx))
	assert.Equal(t, []string{"arm(true)", "takeOff(5)"}, fake.Calls())
}

func TestOnStarted_LongSequencePreservesOrder(t *testing.T) {
	fake := sessiontest.New()
	q := newQueue(fake)
	ctx := context.Background()

	var want []string
	for i := range 50 {
		c, ok := command.SetGuidedAltitude(i)
		require.True(t, ok)
		q.Submit(ctx, c)
		want = append(want, "setGuidedAltitude("+strconv.Itoa(i)+")")
	}

	fake.SetStarted(true)
	q.OnStarted(ctx)

	assert.Equal(t, want, fake.Calls())
}

func TestSubmit_AfterStartNeverQueued(t *testing.T) {
	fake := sessiontest.New()
	q := newQueue(fake)
	ctx := context.Background()

	q.Submit(ctx, command.Arm())
	fake.SetStarted(true)
	q.OnStarted(ctx)

	q.Submit(ctx, command.Disarm())

	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []string{"arm(true)", "arm(false)"}, fake.Calls())
}

func TestOnStarted_ExecErrorDoesNotStopFlush(t *testing.T) {
	var got []command.Kind
	gate := sessiontest.New()
	q := New(gate, func(_ context.Context, c command.Command) error {
		got = append(got, c.Kind)
		if c.Kind == command.KindArm {
			return errors.New("rejected")
		}
		return nil
	}, nil)
	ctx := context.Background()

	q.Submit(ctx, command.Arm())
	q.Submit(ctx, command.StopFollow())

	gate.SetStarted(true)
	assert.Equal(t, 2, q.OnStarted(ctx))
	assert.Equal(t, []command.Kind{command.KindArm, command.KindStopFollow}, got)
}

func TestOnStarted_SubmitDuringFlushNotInBatch(t *testing.T) {
	gate := sessiontest.New()
	var q *Queue
	var got []command.Kind
	q = New(gate, func(ctx context.Context, c command.Command) error {
		got = append(got, c.Kind)
		if c.Kind == command.KindArm {
			q.Submit(ctx, command.Disarm())
		}
		return nil
	}, nil)
	ctx := context.Background()

	q.Submit(ctx, command.Arm())
	q.Submit(ctx, command.StopFollow())

	gate.SetStarted(true)
	n := q.OnStarted(ctx)

	assert.Equal(t, 2, n)
	// Disarm ran immediately because the gate was open when it arrived.
	assert.Equal(t, []command.Kind{command.KindArm, command.KindDisarm, command.KindStopFollow}, got)
}

func TestSubmit_ConcurrentWhileNotStarted(t *testing.T) {
	fake := sessiontest.New()
	q := newQueue(fake)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Submit(ctx, command.Arm())
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, q.Len())
	fake.SetStarted(true)
	assert.Equal(t, 20, q.OnStarted(ctx))
	assert.Len(t, fake.Calls(), 20)
}

func TestDrop(t *testing.T) {
	fake := sessiontest.New()
	q := newQueue(fake)
	ctx := context.Background()

	q.Submit(ctx, command.Arm())
	q.Submit(ctx, command.Disarm())

	assert.Equal(t, 2, q.Drop())
	assert.Equal(t, 0, q.Len())

	fake.SetStarted(true)
	assert.Equal(t, 0, q.OnStarted(ctx))
	assert.Empty(t, fake.Calls())
}

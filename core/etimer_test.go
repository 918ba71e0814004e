package core

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETimerScenarioA(t *testing.T) {
	q, s, clk := newTestQueue(1000)
	s.current = 1

	et := q.Alloc()
	assert.True(t, q.Expired(et), "never armed reads as expired")

	q.Set(et, 500)
	assert.Equal(t, Tick(1500), q.ExpirationTime(et))
	assert.Equal(t, Tick(1000), q.StartTime(et))
	assert.Equal(t, ProcessID(1), q.Owner(et))
	assert.Contains(t, s.polls, queuePID)
	assert.Equal(t, Tick(1500), clk.NextWake())

	clk.Set(1499)
	q.poll()
	assert.Empty(t, s.postsOf(EventTimer))
	assert.False(t, q.Expired(et))

	clk.Set(1500)
	q.poll()
	fired := s.postsOf(EventTimer)
	require.Len(t, fired, 1)
	assert.Equal(t, ProcessID(1), fired[0].to)
	assert.Equal(t, et, fired[0].data)
	assert.True(t, q.Expired(et))
	assert.False(t, q.Pending())

	// delivered exactly once
	clk.Set(1600)
	q.poll()
	assert.Len(t, s.postsOf(EventTimer), 1)
}

func TestETimerScenarioBResetIsDriftFree(t *testing.T) {
	logger, buf := bufferLogger()
	q, s, clk := newTestQueue(1000, WithQueueLogger(logger), WithLateFireLimiter(nil))
	s.current = 1

	et := q.Alloc()
	q.Set(et, 500)

	clk.Set(1550)
	q.poll()
	require.Len(t, s.postsOf(EventTimer), 1)
	assert.Contains(t, buf.String(), "etimer: timer delivered late")

	q.Reset(et)
	assert.Equal(t, Tick(1500), q.StartTime(et))
	assert.Equal(t, Tick(2000), q.ExpirationTime(et))
	assert.False(t, q.Expired(et))
}

func TestETimerRestartBreaksProgression(t *testing.T) {
	q, s, clk := newTestQueue(1000)
	s.current = 1

	et := q.Alloc()
	q.Set(et, 500)
	clk.Set(1550)
	q.poll()

	q.Restart(et)
	assert.Equal(t, Tick(1550), q.StartTime(et))
	assert.Equal(t, Tick(2050), q.ExpirationTime(et))
}

func TestETimerResetNext(t *testing.T) {
	q, s, clk := newTestQueue(0)
	s.current = 1

	et := q.Alloc()
	q.Set(et, 100)
	clk.Set(350)
	q.poll()

	q.ResetNext(et)
	assert.Equal(t, Tick(400), q.ExpirationTime(et))
	assert.Equal(t, 1, q.Len())
}

func TestETimerAdjust(t *testing.T) {
	q, s, _ := newTestQueue(1000)
	s.current = 1

	a, b := q.Alloc(), q.Alloc()
	q.Set(a, 100)
	q.Set(b, 200)
	require.Equal(t, []ETimer{a, b}, q.Timers())

	q.Adjust(b, -150)
	assert.Equal(t, Tick(1050), q.ExpirationTime(b))
	assert.Equal(t, []ETimer{b, a}, q.Timers())
	assert.Equal(t, Tick(1050), q.NextExpirationTime())
}

func TestETimerLateLogIsRateLimitedByDefault(t *testing.T) {
	logger, buf := bufferLogger()
	q, s, clk := newTestQueue(0, WithQueueLogger(logger))
	s.current = 1

	timers := make([]ETimer, 10)
	for i := range timers {
		timers[i] = q.Alloc()
		q.Set(timers[i], 10)
	}
	clk.Set(1000)
	q.poll()

	require.Len(t, s.postsOf(EventTimer), 10)
	assert.Less(t, strings.Count(buf.String(), "timer delivered late"), 10)
	assert.Greater(t, strings.Count(buf.String(), "timer delivered late"), 0)
}

func TestETimerWithinSlackIsNotLogged(t *testing.T) {
	logger, buf := bufferLogger()
	q, s, clk := newTestQueue(0, WithQueueLogger(logger), WithLateFireLimiter(nil))
	s.current = 1

	et := q.Alloc()
	q.Set(et, 100)
	clk.Set(120)
	q.poll()

	require.Len(t, s.postsOf(EventTimer), 1)
	assert.NotContains(t, buf.String(), "timer delivered late")
}

func TestETimerEqualDeadlinesFireInInsertionOrder(t *testing.T) {
	q, s, clk := newTestQueue(0)

	var timers []ETimer
	for p := ProcessID(1); p <= 4; p++ {
		s.current = p
		et := q.Alloc()
		q.Set(et, 50)
		timers = append(timers, et)
	}
	assert.Equal(t, timers, q.Timers())

	clk.Set(50)
	q.poll()
	fired := s.postsOf(EventTimer)
	require.Len(t, fired, 4)
	for i, f := range fired {
		assert.Equal(t, ProcessID(i+1), f.to)
		assert.Equal(t, timers[i], f.data)
	}
}

func TestETimerStop(t *testing.T) {
	q, s, clk := newTestQueue(0)
	s.current = 1

	a, b := q.Alloc(), q.Alloc()
	q.Set(a, 10)
	q.Set(b, 20)

	q.Stop(a)
	assert.True(t, q.Expired(a))
	assert.Equal(t, []ETimer{b}, q.Timers())
	assert.Equal(t, Tick(20), q.NextExpirationTime())
	assert.Equal(t, Tick(20), clk.NextWake())

	// idempotent
	q.Stop(a)
	assert.Equal(t, 1, q.Len())

	clk.Set(100)
	q.poll()
	fired := s.postsOf(EventTimer)
	require.Len(t, fired, 1)
	assert.Equal(t, b, fired[0].data)

	// stopping a delivered timer is harmless too
	q.Stop(b)
	assert.False(t, q.Pending())
}

func TestETimerStopLastTimerProgramsKeepalive(t *testing.T) {
	q, s, clk := newTestQueue(1000)
	s.current = 1

	et := q.Alloc()
	q.Set(et, 10)
	require.Equal(t, Tick(1010), clk.NextWake())

	q.Free(et)
	assert.False(t, q.Pending())
	assert.Equal(t, Tick(0), q.NextExpirationTime())
	assert.Equal(t, Tick(1000+60000), clk.NextWake())
}

func TestETimerArmOutsideProcessPanics(t *testing.T) {
	q, s, _ := newTestQueue(0)
	et := q.Alloc()

	s.current = NoProcess
	assert.PanicsWithError(t, "gotiki: assertion failed in etimer.add: timer armed outside a process", func() {
		q.Set(et, 500)
	})
	assert.True(t, q.Expired(et))
	assert.Zero(t, q.Len())

	s.current = 1
	q.Set(et, 500)
	q.Set(et, 600)
	assert.Equal(t, []ETimer{et}, q.Timers())
	q.Stop(et)
	assert.Zero(t, q.Len())
}

func TestETimerEmptyQueueProgramsKeepalive(t *testing.T) {
	q, s, clk := newTestQueue(5000)
	assert.Equal(t, Tick(5000+60000), clk.NextWake())
	assert.Equal(t, Tick(0), q.NextExpirationTime())

	s.current = 1
	et := q.Alloc()
	q.Set(et, 10)
	assert.Equal(t, Tick(5010), clk.NextWake())
	assert.Equal(t, Tick(5010), q.NextExpirationTime())

	clk.Set(5010)
	q.poll()
	assert.Equal(t, Tick(5010+60000), clk.NextWake())
	assert.Equal(t, Tick(0), q.NextExpirationTime())
}

func TestETimerOwnershipTransfer(t *testing.T) {
	logger, buf := bufferLogger()
	q, s, clk := newTestQueue(0, WithQueueLogger(logger))

	s.current = 1
	et := q.Alloc()
	q.Set(et, 100)

	s.current = 2
	q.Set(et, 100)
	assert.Equal(t, ProcessID(2), q.Owner(et))
	assert.Equal(t, 1, q.Len())
	assert.Contains(t, buf.String(), "etimer: timer gets new owner")

	clk.Set(100)
	q.poll()
	fired := s.postsOf(EventTimer)
	require.Len(t, fired, 1)
	assert.Equal(t, ProcessID(2), fired[0].to)
}

func TestETimerRearmBySameOwnerIsQuiet(t *testing.T) {
	logger, buf := bufferLogger()
	q, s, _ := newTestQueue(0, WithQueueLogger(logger))
	s.current = 1

	et := q.Alloc()
	q.Set(et, 100)
	q.Set(et, 50)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, Tick(50), q.NextExpirationTime())
	assert.NotContains(t, buf.String(), "new owner")
}

func TestETimerProcessExitedPurgesOnlyThatProcess(t *testing.T) {
	q, s, clk := newTestQueue(0)

	owners := []ProcessID{1, 2, 1, 3, 2, 1}
	var all []ETimer
	for i, p := range owners {
		s.current = p
		et := q.Alloc()
		q.Set(et, Ticks(10*(i+1)))
		all = append(all, et)
	}

	q.Step(queuePID, EventExited, ProcessID(1))

	var want []ETimer
	for i, et := range all {
		if owners[i] == 1 {
			assert.True(t, q.Expired(et))
			continue
		}
		want = append(want, et)
	}
	assert.Equal(t, want, q.Timers())
	assert.Equal(t, Tick(20), q.NextExpirationTime())

	clk.Set(1000)
	q.poll()
	for _, f := range s.postsOf(EventTimer) {
		assert.NotEqual(t, ProcessID(1), f.to)
	}
	assert.Len(t, s.postsOf(EventTimer), 3)
}

func TestETimerPostFailureStillDisarms(t *testing.T) {
	logger, buf := bufferLogger()
	q, s, clk := newTestQueue(0, WithQueueLogger(logger))
	s.current = 1

	et := q.Alloc()
	q.Set(et, 10)
	s.full = true
	clk.Set(10)
	q.poll()

	assert.True(t, q.Expired(et))
	assert.False(t, q.Pending())
	assert.Contains(t, buf.String(), "could not post timer event")
}

func TestETimerFreeInvalidatesHandle(t *testing.T) {
	q, s, _ := newTestQueue(0)
	s.current = 1

	et := q.Alloc()
	q.Set(et, 10)
	q.Free(et)
	assert.False(t, q.Pending())

	assert.Panics(t, func() { q.Set(et, 10) })
	assert.Panics(t, func() { q.Expired(ETimer{}) })

	// the slot is reused under a new generation
	again := q.Alloc()
	assert.NotEqual(t, et, again)
	assert.True(t, again.Valid())
	assert.True(t, q.Expired(again))
}

func TestETimerRejectsInterruptContext(t *testing.T) {
	q, s, _ := newTestQueue(0)
	s.current = 1
	et := q.Alloc()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*AssertionError)
		require.True(t, ok)
		assert.Equal(t, "etimer.Set", err.Op)
	}()

	SimulateInterrupt(func() {
		q.RequestPoll() // allowed
		q.Set(et, 10)
	})
}

func TestETimerQueueStaysSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	// start close to the rollover so deadlines straddle it
	q, s, clk := newTestQueue(0xFFFF0000)

	timers := make([]ETimer, 24)
	for i := range timers {
		timers[i] = q.Alloc()
	}

	for step := 0; step < 2000; step++ {
		s.current = ProcessID(1 + rng.Intn(4))
		et := timers[rng.Intn(len(timers))]

		switch rng.Intn(7) {
		case 0, 1:
			q.Set(et, Ticks(rng.Intn(5000)))
		case 2:
			q.Reset(et)
		case 3:
			q.Restart(et)
		case 4:
			q.Adjust(et, int32(rng.Intn(2000)-1000))
		case 5:
			q.Stop(et)
		case 6:
			clk.Advance(Ticks(rng.Intn(300)))
			q.poll()
		}

		order := q.Timers()
		for i := 1; i < len(order); i++ {
			require.True(t, GE(q.ExpirationTime(order[i]), q.ExpirationTime(order[i-1])),
				"step %d: queue out of order at %d", step, i)
		}
		for _, et := range timers {
			armed := !q.Expired(et)
			require.Equal(t, armed, contains(order, et), "step %d: owner/queue mismatch", step)
		}
		if len(order) != 0 {
			require.Equal(t, q.ExpirationTime(order[0]), q.NextExpirationTime())
		}
	}
}

func TestETimerNeverFiresEarly(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	q, s, clk := newTestQueue(0xFFFFF000)
	s.current = 1

	starts := map[ETimer]Tick{}
	intervals := map[ETimer]Ticks{}
	for i := 0; i < 50; i++ {
		et := q.Alloc()
		iv := Ticks(rng.Intn(10000))
		q.Set(et, iv)
		starts[et] = clk.Now()
		intervals[et] = iv
		clk.Advance(Ticks(rng.Intn(50)))
	}

	for q.Pending() {
		s.reset()
		clk.Advance(Ticks(1 + rng.Intn(400)))
		q.poll()
		for _, f := range s.postsOf(EventTimer) {
			et := f.data.(ETimer)
			require.GreaterOrEqual(t, clk.Now()-starts[et], intervals[et])
		}
	}
}

func contains(list []ETimer, et ETimer) bool {
	for _, x := range list {
		if x == et {
			return true
		}
	}
	return false
}

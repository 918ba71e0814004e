package core

import (
	"bytes"
	"strconv"

	"github.com/joeycumines/logiface"
)

type posted struct {
	to   ProcessID
	ev   Event
	data any
}

// fakeScheduler records what the primitives ask of the process layer.
type fakeScheduler struct {
	current ProcessID
	posts   []posted
	polls   []ProcessID
	full    bool
}

func (f *fakeScheduler) Current() ProcessID { return f.current }

func (f *fakeScheduler) Post(to ProcessID, ev Event, data any) bool {
	if f.full {
		return false
	}
	f.posts = append(f.posts, posted{to: to, ev: ev, data: data})
	return true
}

func (f *fakeScheduler) RequestPoll(p ProcessID) { f.polls = append(f.polls, p) }

func (f *fakeScheduler) Name(p ProcessID) string { return "p" + strconv.Itoa(int(p)) }

func (f *fakeScheduler) postsOf(ev Event) []posted {
	var out []posted
	for _, p := range f.posts {
		if p.ev == ev {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeScheduler) reset() {
	f.posts = nil
	f.polls = nil
}

func bufferLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&buf, logiface.LevelDebug), &buf
}

const queuePID ProcessID = 100

// newTestQueue returns a started queue on a fake scheduler.
func newTestQueue(start Tick, opts ...QueueOption) (*TimerQueue, *fakeScheduler, *ManualClock) {
	s := &fakeScheduler{}
	clk := NewManualClock(start)
	q := NewTimerQueue(s, clk, opts...)
	q.Step(queuePID, EventInit, nil)
	return q, s, clk
}

func (q *TimerQueue) poll() {
	q.Step(queuePID, EventPoll, nil)
}

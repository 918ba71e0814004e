package demo

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotiki/core"
	"gotiki/process"
)

func TestProducerConsumer(t *testing.T) {
	k := process.New()
	clk := core.NewManualClock(0)
	pc := NewProducerConsumer(k, clk, core.DefaultConfig(core.DefaultTickRate), nil)

	prod := k.Start("producer", pc.Producer())
	cons := k.Start("consumer", pc.Consumer())
	require.True(t, k.RunUntilIdle(1000))

	want := make([]int, NumItems)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, pc.Consumed)
	assert.False(t, k.IsRunning(prod))
	assert.False(t, k.IsRunning(cons))

	assert.Equal(t, 0, pc.Buffered())
	assert.Equal(t, uint(0), pc.Full.Count())
	assert.Equal(t, uint(BufSize), pc.Empty.Count())
	assert.Equal(t, uint(1), pc.Mutex.Count())
}

func TestProducerConsumerConsumerFirst(t *testing.T) {
	k := process.New()
	clk := core.NewManualClock(0)
	pc := NewProducerConsumer(k, clk, core.DefaultConfig(core.DefaultTickRate), nil)

	k.Start("consumer", pc.Consumer())
	assert.Equal(t, core.ProcessID(1), pc.Full.Waiter())
	k.Start("producer", pc.Producer())
	require.True(t, k.RunUntilIdle(1000))

	assert.Len(t, pc.Consumed, NumItems)
	assert.Equal(t, uint(BufSize), pc.Empty.Count())
}

func TestTickerStaysOnGrid(t *testing.T) {
	var buf bytes.Buffer
	log := core.NewLogger(&buf, logiface.LevelInformational)

	k := process.New()
	clk := core.NewManualClock(0)
	q := core.NewTimerQueue(k, clk)
	k.Start("etimer", q)
	tk := NewTicker(k, q, clk, core.DefaultTickRate, log)
	k.Start("ticker", tk)
	require.True(t, k.RunUntilIdle(100))

	// a sluggish main loop that only polls every 70ms
	for clk.Now() < 5500 {
		clk.Advance(70)
		q.RequestPoll()
		require.True(t, k.RunUntilIdle(100))
	}

	assert.Equal(t, 5, tk.Count)
	assert.Equal(t, core.Tick(6000), q.NextExpirationTime())
	assert.Equal(t, 6, strings.Count(buf.String(), "demo: time"))
	assert.Contains(t, buf.String(), "demo: starting ticker")
}

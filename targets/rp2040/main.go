//go:build rp2040

package main

import (
	"machine"
	"time"

	"github.com/joeycumines/logiface"

	"gotiki/apps/demo"
	"gotiki/core"
	"gotiki/process"
)

// loopInterval is the idle sleep of the main loop between polls.
const loopInterval = 10 * time.Millisecond

var (
	kernel *process.Kernel
	queue  *core.TimerQueue

	// Debug counters
	loopPanics uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	logger := core.NewLogger(machine.Serial, logiface.LevelInformational)
	core.SetLogger(logger)

	cfg := core.DefaultConfig(tickRate)
	kernel = process.New(process.WithLogger(logger))
	clock := &core.SystemClock{OnProgram: programAlarm}
	queue = core.NewTimerQueue(kernel, clock, core.WithQueueConfig(cfg))

	InitClock(queue.RequestPoll)

	kernel.Start("etimer", queue)
	kernel.Start("ticker", demo.NewTicker(kernel, queue, clock, tickRate, logger))
	pc := demo.NewProducerConsumer(kernel, clock, cfg, logger)
	kernel.Start("producer", pc.Producer())
	kernel.Start("consumer", pc.Consumer())

	logger.Notice().Str("mcu", "rp2040").Int("rate", int(tickRate)).Log("gotiki: started")

	for {
		runOnce(logger)
		time.Sleep(loopInterval)
	}
}

// runOnce polls the timer queue and runs processes until none is runnable.
// A failed assertion is logged with the trace ring, and the loop carries on.
func runOnce(logger *core.Logger) {
	defer func() {
		if r := recover(); r != nil {
			loopPanics++
			if err, ok := r.(*core.AssertionError); ok {
				logger.Crit().Err(err).Log("gotiki: assertion failed")
			} else {
				logger.Crit().Log("gotiki: panic in main loop")
			}
			core.DumpTraceRing(logger)
		}
	}()

	UpdateSystemTime()
	queue.RequestPoll()
	for kernel.Run() > 0 {
		UpdateSystemTime()
	}
}

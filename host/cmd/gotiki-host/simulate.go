package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"gotiki/apps/demo"
	"gotiki/config"
	"gotiki/core"
	"gotiki/process"
)

var simulateFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "JSON runtime configuration (defaults apply when omitted)",
	},
	cli.DurationFlag{
		Name:  "duration, t",
		Value: 5 * time.Second,
		Usage: "simulated time to run for",
	},
	cli.BoolFlag{
		Name:  "realtime, r",
		Usage: "follow the host clock instead of stepping a simulated one",
	},
	cli.BoolFlag{
		Name:  "trace",
		Usage: "dump the trace ring at the end",
	},
}

// loopInterval is the main loop period, as in the board's main loop.
const loopInterval = 10 * time.Millisecond

type simOptions struct {
	ConfigPath string
	Duration   time.Duration
	Realtime   bool
	Trace      bool
}

type simResult struct {
	Ticks    int
	Consumed int
	Elapsed  core.Tick
}

func simulateAction(ctx *cli.Context, out io.Writer, fs afero.Fs) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err := simulate(sigCtx, out, fs, simOptions{
		ConfigPath: ctx.String("config"),
		Duration:   ctx.Duration("duration"),
		Realtime:   ctx.Bool("realtime"),
		Trace:      ctx.Bool("trace"),
	})
	return err
}

// hostClock is the part of the clock the simulation loop needs.
type hostClock interface {
	core.Clock
	// wait blocks until d has passed, on whichever timeline the clock
	// follows.
	wait(ctx context.Context, d time.Duration) error
}

type steppedClock struct {
	*core.ManualClock
	rate core.TickRate
}

func (c steppedClock) wait(ctx context.Context, d time.Duration) error {
	c.Advance(c.rate.Ms(uint32(d / time.Millisecond)))
	return ctx.Err()
}

type realClock struct {
	*core.HostClock
}

func (c realClock) wait(ctx context.Context, d time.Duration) error {
	if u := c.UntilWake(); u < d {
		d = u
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func simulate(ctx context.Context, out io.Writer, fs afero.Fs, opts simOptions) (*simResult, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadFile(fs, opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	cc := cfg.Core()

	logger := core.NewLogger(out, cfg.Level())
	core.SetLogger(logger)
	core.ClearTraceRing()

	var clk hostClock
	if opts.Realtime {
		clk = realClock{core.NewHostClock(cc.Rate)}
	} else {
		clk = steppedClock{core.NewManualClock(0), cc.Rate}
	}

	k := process.New(process.WithMaxEvents(cfg.MaxEvents), process.WithLogger(logger))
	q := core.NewTimerQueue(k, clk, core.WithQueueConfig(cc), core.WithQueueLogger(logger))
	k.Start("etimer", q)

	ticker := demo.NewTicker(k, q, clk, cc.Rate, logger)
	k.Start("ticker", ticker)
	pc := demo.NewProducerConsumer(k, clk, cc, logger)
	k.Start("producer", pc.Producer())
	k.Start("consumer", pc.Consumer())

	logger.Info().
		Int("rate", int(cc.Rate)).
		Bool("realtime", opts.Realtime).
		Str("duration", opts.Duration.String()).
		Log("simulate: started")

	start := clk.Now()
	end := core.Ticks(uint64(opts.Duration) * uint64(cc.Rate) / uint64(time.Second))
	var err error
	for clk.Now()-start < end {
		q.RequestPoll()
		k.RunUntilIdle(cfg.MaxEvents * 4)
		if err = clk.wait(ctx, loopInterval); err != nil {
			break
		}
	}
	q.RequestPoll()
	k.RunUntilIdle(cfg.MaxEvents * 4)

	res := &simResult{
		Ticks:    ticker.Count,
		Consumed: len(pc.Consumed),
		Elapsed:  clk.Now() - start,
	}
	logger.Info().
		Int("ticks", res.Ticks).
		Int("consumed", res.Consumed).
		Uint64("elapsed_ms", uint64(cc.Rate.ToMs(res.Elapsed))).
		Log("simulate: done")
	if opts.Trace {
		core.DumpTraceRing(logger)
	}

	if err == context.Canceled {
		err = nil
	}
	return res, err
}

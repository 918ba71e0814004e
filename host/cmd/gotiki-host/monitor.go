package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"gotiki/config"
	"gotiki/host/monitor"
	"gotiki/host/serial"
)

var monitorFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "device, d",
		Value: "/dev/ttyACM0",
		Usage: "serial device of the board console",
	},
	cli.IntFlag{
		Name:  "baud, b",
		Value: 115200,
		Usage: "baud rate (ignored for USB CDC)",
	},
	cli.StringFlag{
		Name:  "file, f",
		Usage: "replay a captured log file instead of opening the device",
	},
	cli.StringFlag{
		Name:  "level, l",
		Value: "debug",
		Usage: "hide entries less severe than this level",
	},
	cli.StringFlag{
		Name:  "grep, g",
		Usage: "only show entries whose message contains this text",
	},
	cli.BoolFlag{
		Name:  "summary",
		Usage: "print counters when the stream ends",
	},
}

func monitorAction(ctx *cli.Context, out io.Writer, fs afero.Fs) error {
	level, err := config.ParseLevel(ctx.String("level"))
	if err != nil {
		return err
	}

	var src io.ReadCloser
	if path := ctx.String("file"); path != "" {
		f, err := fs.Open(path)
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		src = f
	} else {
		cfg := serial.DefaultConfig(ctx.String("device"))
		cfg.Baud = ctx.Int("baud")
		port, err := serial.Open(cfg)
		if err != nil {
			return err
		}
		if err := port.Flush(); err != nil {
			port.Close()
			return err
		}
		src = port
	}
	defer src.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := monitor.New(out, monitor.WithLevel(level), monitor.WithGrep(ctx.String("grep")))
	runErr := m.Run(sigCtx, src)
	if ctx.Bool("summary") {
		if err := m.WriteSummary(out); err != nil {
			return err
		}
	}
	if runErr == context.Canceled {
		return nil
	}
	return runErr
}

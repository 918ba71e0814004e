// Command gotiki-host is the host-side companion of the firmware: it follows
// the board's log over the serial console and runs the demo processes on the
// host for experimentation.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

const version = "0.1.0"

func newApp(out io.Writer, fs afero.Fs) *cli.App {
	app := cli.NewApp()
	app.Name = "gotiki-host"
	app.HelpName = "gotiki-host"
	app.Usage = "host tools for the gotiki runtime"
	app.UsageText = "gotiki-host <command> [arguments...]"
	app.Version = version
	app.Writer = out
	app.Commands = []cli.Command{
		{
			Name:    "monitor",
			Aliases: []string{"m"},
			Usage:   "follow the firmware log on the serial console",
			Flags:   monitorFlags,
			Action: func(ctx *cli.Context) error {
				return monitorAction(ctx, out, fs)
			},
		},
		{
			Name:    "simulate",
			Aliases: []string{"s"},
			Usage:   "run the demo processes on the host",
			Flags:   simulateFlags,
			Action: func(ctx *cli.Context) error {
				return simulateAction(ctx, out, fs)
			},
		},
	}
	return app
}

func main() {
	if err := newApp(os.Stdout, afero.NewOsFs()).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotiki/core"
)

func TestSimulate(t *testing.T) {
	defer core.SetLogger(nil)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "sim.json", []byte(`{"log_level":"info"}`), 0o644))

	var out bytes.Buffer
	res, err := simulate(context.Background(), &out, fs, simOptions{
		ConfigPath: "sim.json",
		Duration:   3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ticks)
	assert.Equal(t, 32, res.Consumed)
	assert.Equal(t, core.Tick(3000), res.Elapsed)

	log := out.String()
	assert.Contains(t, log, `"msg":"simulate: started"`)
	assert.Contains(t, log, `"msg":"simulate: done"`)
	assert.Equal(t, 4, strings.Count(log, "demo: time"))
	assert.NotContains(t, log, "timer delivered late")
}

func TestSimulateMissingConfig(t *testing.T) {
	_, err := simulate(context.Background(), &bytes.Buffer{}, afero.NewMemMapFs(), simOptions{ConfigPath: "nope.json"})
	assert.Error(t, err)
}

func TestSimulateCancelled(t *testing.T) {
	defer core.SetLogger(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := simulate(ctx, &bytes.Buffer{}, afero.NewMemMapFs(), simOptions{Duration: time.Hour, Realtime: true})
	require.NoError(t, err)
	assert.Zero(t, res.Ticks)
}

func TestAppMonitorReplaysFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "capture.log", []byte(
		`{"lvl":"debug","msg":"ptsem: blocking"}`+"\n"+
			`{"lvl":"warning","process":"ticker","msg":"etimer: timer delivered late"}`+"\n"),
		0o644))

	var out bytes.Buffer
	err := newApp(&out, fs).Run([]string{"gotiki-host", "monitor", "--file", "capture.log", "--level", "info", "--summary"})
	require.NoError(t, err)

	assert.Equal(t,
		"warning etimer: timer delivered late process=ticker\n"+
			"lines=2 shown=1 malformed=0 late_fires=1 warning=1 debug=1\n",
		out.String())
}

func TestAppMonitorBadLevel(t *testing.T) {
	err := newApp(&bytes.Buffer{}, afero.NewMemMapFs()).Run([]string{"gotiki-host", "monitor", "--file", "x", "--level", "loud"})
	assert.Error(t, err)
}

func TestAppSimulate(t *testing.T) {
	defer core.SetLogger(nil)

	var out bytes.Buffer
	err := newApp(&out, afero.NewMemMapFs()).Run([]string{"gotiki-host", "simulate", "--duration", "1s", "--trace"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "trace ring dump")
}

// Package monitor renders the firmware's JSON log stream for a terminal.
package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"

	"gotiki/config"
)

// LateFireMsg is the message the timer queue logs for an overdue timer.
const LateFireMsg = "etimer: timer delivered late"

// Field is one key/value pair of an entry, in the order it was written.
type Field struct {
	Key   string
	Value string
}

// Entry is a decoded log line.
type Entry struct {
	Level  logiface.Level
	Msg    string
	Fields []Field
}

// ParseLine decodes one JSON log line.
func ParseLine(line []byte) (Entry, error) {
	var e Entry
	e.Level = logiface.LevelDisabled

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return e, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return e, fmt.Errorf("monitor: not an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return e, err
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return e, err
		}
		value := render(raw)

		switch key {
		case "lvl":
			level, err := config.ParseLevel(value)
			if err != nil {
				return e, err
			}
			e.Level = level
		case "msg":
			e.Msg = value
		default:
			e.Fields = append(e.Fields, Field{Key: key, Value: value})
		}
	}
	if _, err := dec.Token(); err != nil {
		return e, err
	}
	if e.Level == logiface.LevelDisabled {
		return e, fmt.Errorf("monitor: no level")
	}
	return e, nil
}

func render(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// String formats the entry as a single line.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-7s %s", e.Level, e.Msg)
	for _, f := range e.Fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		if strings.ContainsAny(f.Value, " \t\"") || f.Value == "" {
			fmt.Fprintf(&b, "%q", f.Value)
		} else {
			b.WriteString(f.Value)
		}
	}
	return b.String()
}

// Stats counts what the monitor has seen.
type Stats struct {
	Lines     int
	Shown     int
	Malformed int
	LateFires int
	ByLevel   map[logiface.Level]int
}

// Monitor filters and prints log lines.
type Monitor struct {
	out      io.Writer
	minLevel logiface.Level
	grep     string

	Stats Stats
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLevel hides entries less severe than level.
func WithLevel(level logiface.Level) Option {
	return func(m *Monitor) {
		m.minLevel = level
	}
}

// WithGrep only shows entries whose message contains s.
func WithGrep(s string) Option {
	return func(m *Monitor) {
		m.grep = s
	}
}

// New returns a monitor printing to out. By default everything down to
// debug is shown.
func New(out io.Writer, opts ...Option) *Monitor {
	m := &Monitor{
		out:      out,
		minLevel: logiface.LevelDebug,
		Stats:    Stats{ByLevel: make(map[logiface.Level]int)},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run prints lines from r until it is exhausted or ctx is done.
func (m *Monitor) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.HandleLine(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("monitor: read: %w", err)
	}
	return nil
}

// HandleLine processes one line. Lines that are not log entries, such as
// boot noise, are passed through unchanged.
func (m *Monitor) HandleLine(line []byte) error {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}
	m.Stats.Lines++

	e, err := ParseLine(line)
	if err != nil {
		m.Stats.Malformed++
		if m.grep != "" && !bytes.Contains(line, []byte(m.grep)) {
			return nil
		}
		return m.print(string(line))
	}

	m.Stats.ByLevel[e.Level]++
	if e.Msg == LateFireMsg {
		m.Stats.LateFires++
	}
	if e.Level > m.minLevel {
		return nil
	}
	if m.grep != "" && !strings.Contains(e.Msg, m.grep) {
		return nil
	}
	return m.print(e.String())
}

func (m *Monitor) print(s string) error {
	m.Stats.Shown++
	_, err := fmt.Fprintln(m.out, s)
	return err
}

// WriteSummary writes the counters.
func (m *Monitor) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w, "lines=%d shown=%d malformed=%d late_fires=%d", m.Stats.Lines, m.Stats.Shown, m.Stats.Malformed, m.Stats.LateFires)
	if err != nil {
		return err
	}
	for level := logiface.LevelEmergency; level <= logiface.LevelTrace; level++ {
		if n := m.Stats.ByLevel[level]; n != 0 {
			if _, err := fmt.Fprintf(w, " %s=%d", level, n); err != nil {
				return err
			}
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}

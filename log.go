package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/rcrowley/go-metrics"
)

// debugPrefix marks a log line as debug-only; DebugLog suppresses these
// unless debug mode has been toggled on via the control surface's
// setdebug command.
const debugPrefix = "[DEBUG]"

// DebugLog wraps a *log.Logger, filtering [DEBUG]-prefixed lines out of
// its output unless debug mode is on. Suppressed lines are counted on a
// go-metrics counter rather than silently dropped, so an operator can see
// how noisy the daemon would be with debug logging enabled.
type DebugLog struct {
	Logger *log.Logger
	out    io.Writer
	r      *io.PipeReader
	debug  bool
	mux    sync.Mutex

	suppressed metrics.Counter
}

// NewDebugLog starts the filtering goroutine and returns a DebugLog
// writing to out once built. prefix/flag are passed straight through to
// the wrapped log.Logger.
func NewDebugLog(out io.Writer, prefix string, flag int) *DebugLog {
	r, w := io.Pipe()
	l := &DebugLog{
		Logger:     log.New(w, prefix, flag),
		out:        out,
		r:          r,
		suppressed: metrics.NewCounter(),
	}
	metrics.Register("log.debug_suppressed", l.suppressed)
	go l.filter()
	return l
}

// SetDebug toggles whether [DEBUG]-prefixed lines pass through to out.
func (l *DebugLog) SetDebug(d bool) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.debug = d
}

// Debug reports the current debug-mode setting.
func (l *DebugLog) Debug() bool {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.debug
}

// Close tears down the filtering goroutine and, if out is also an
// io.Closer, closes it.
func (l *DebugLog) Close() {
	l.r.Close()
	if c, ok := l.out.(io.Closer); ok {
		c.Close()
	}
}

func (l *DebugLog) filter() {
	s := bufio.NewScanner(l.r)
	for s.Scan() {
		m := s.Text()
		if l.Debug() || !strings.Contains(m, debugPrefix) {
			fmt.Fprintln(l.out, m)
			continue
		}
		l.suppressed.Inc(1)
	}
}

package tracepoint

import (
	"bytes"
	"runtime"
	"strconv"
	"time"

	"github.com/ardnew/tracepoint/sink"
)

// Span is an open region of an enabled tracepoint. The zero Span, returned
// by [Site.Begin] for a disabled tracepoint, does nothing when ended.
//
// Span is a value; close it exactly once, normally with defer:
//
//	defer site.Begin().End()
type Span struct {
	site  *Site
	start time.Time
	depth int
	gid   uint64
}

// Begin opens a span if the tracepoint is enabled. When disabled, the cost is
// one atomic load and nothing is recorded.
func (s *Site) Begin() Span {
	if !s.cell.enabled.Load() {
		return Span{}
	}

	return s.open()
}

func (s *Site) open() Span {
	sp := Span{
		site:  s,
		start: time.Now(),
		depth: callDepth(),
		gid:   goroutineID(),
	}

	s.reg.emitBegin(sp.event(time.Time{}, ""))

	return sp
}

// Active reports whether the span records anything.
func (sp Span) Active() bool { return sp.site != nil }

// End closes the span and emits it.
func (sp Span) End() {
	if sp.site == nil {
		return
	}

	sp.site.reg.emitSpan(sp.event(time.Now(), ""))
}

// EndErr closes the span and marks it errored when err is not nil.
func (sp Span) EndErr(err error) {
	if sp.site == nil {
		return
	}

	var msg string
	if err != nil {
		msg = err.Error()
	}

	sp.site.reg.emitSpan(sp.event(time.Now(), msg))
}

func (sp Span) event(end time.Time, errMsg string) *sink.SpanEvent {
	d := sp.site.cell.desc

	return &sink.SpanEvent{
		Start:     sp.start,
		End:       end,
		Name:      d.name,
		Module:    d.module,
		File:      d.file,
		Func:      d.fn,
		Line:      d.line,
		Depth:     sp.depth,
		Goroutine: sp.gid,
		Err:       errMsg,
	}
}

// errPanicked marks spans closed while their body was panicking.
const errPanicked = "panic"

// Run executes fn inside a span of s and returns its results unchanged. The
// span is marked errored if fn returns an error or panics; a panic continues
// to unwind after the span is emitted.
func Run[T any](s *Site, fn func() (T, error)) (T, error) {
	if !s.cell.enabled.Load() {
		return fn()
	}

	sp := s.open()
	done := false

	defer func() {
		if !done {
			sp.site.reg.emitSpan(sp.event(time.Now(), errPanicked))
		}
	}()

	v, err := fn()
	done = true
	sp.EndErr(err)

	return v, err
}

// Do is [Run] for functions without a result value.
func Do(s *Site, fn func() error) error {
	_, err := Run(s, func() (struct{}, error) { return struct{}{}, fn() })

	return err
}

// callDepth returns the number of frames above the caller of Begin.
func callDepth() int {
	var pcs [64]uintptr

	// Skip runtime.Callers, callDepth, open and Begin (or Run).
	const skip = 4

	depth := 0
	for {
		n := runtime.Callers(skip+depth, pcs[:])
		depth += n

		if n < len(pcs) {
			return depth
		}
	}
}

// goroutineID extracts the current goroutine ID from the runtime.Stack
// header "goroutine 123 [running]:".
func goroutineID() uint64 {
	var buf [64]byte

	b := buf[:runtime.Stack(buf[:], false)]

	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}

	b = b[len(prefix):]

	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}

	gid, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}

	return gid
}

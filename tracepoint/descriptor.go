package tracepoint

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Descriptor is the immutable identity of one tracepoint call site.
type Descriptor struct {
	name   string
	module string
	file   string
	fn     string
	line   int
}

// Name returns the tracepoint's display name.
func (d *Descriptor) Name() string { return d.name }

// Module returns the import path of the module that declared the tracepoint.
func (d *Descriptor) Module() string { return d.module }

// File returns the source file of the call site.
func (d *Descriptor) File() string { return d.file }

// Line returns the source line of the call site.
func (d *Descriptor) Line() int { return d.line }

// Func returns the fully qualified name of the enclosing function.
func (d *Descriptor) Func() string { return d.fn }

// ShortFunc returns [Descriptor.Func] without its package path.
func (d *Descriptor) ShortFunc() string {
	if i := strings.LastIndexByte(d.fn, '/'); i >= 0 {
		return d.fn[i+1:]
	}

	return d.fn
}

// String formats d as "module:name (file:line)".
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s:%s (%s:%d)",
		d.module, d.name, filepath.Base(d.file), d.line)
}

func (d *Descriptor) key() siteKey {
	return siteKey{module: d.module, file: d.file, line: d.line}
}

// siteKey is the identity index key. Two declarations at the same position in
// the same module are the same tracepoint.
type siteKey struct {
	module string
	file   string
	line   int
}

// State is the on/off state of a tracepoint.
type State bool

const (
	Disabled State = false
	Enabled  State = true
)

// String returns "enabled" or "disabled".
func (s State) String() string {
	if s {
		return "enabled"
	}

	return "disabled"
}

// Cell holds the mutable enabled flag of a tracepoint.
//
// Reads are a single atomic load. Every write, including one that stores the
// current value, advances the generation counter; compiled units compare
// generations to detect that a specialization is out of date.
type Cell struct {
	desc       *Descriptor
	enabled    atomic.Bool
	generation atomic.Uint64
}

// Descriptor returns the tracepoint identity the cell belongs to.
func (c *Cell) Descriptor() *Descriptor { return c.desc }

// Enabled reports the current state.
func (c *Cell) Enabled() bool { return c.enabled.Load() }

// State returns the current state.
func (c *Cell) State() State { return State(c.enabled.Load()) }

// Generation returns the number of writes the cell has seen.
func (c *Cell) Generation() uint64 { return c.generation.Load() }

func (c *Cell) set(on bool) {
	c.enabled.Store(on)
	c.generation.Add(1)
}

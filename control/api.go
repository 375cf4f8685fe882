// Package control exposes a tracepoint registry over HTTP so a running
// process can be inspected and reconfigured from outside, typically by tpctl.
//
// Endpoints:
//
//	GET  /healthz
//	GET  /modules
//	GET  /tracepoints?module=&name=&func=&file=&where=
//	POST /tracepoints/enable      ToggleRequest -> ToggleResponse
//	POST /tracepoints/configure   ToggleRequest -> ConfigureResponse
//	POST /messages                MessageRequest
//	GET  /metrics                 when a prometheus gatherer is configured
//
// Query parameters and filter fields use the pattern syntax of
// [tracepoint.ParsePattern].
package control

import (
	"encoding/json"
	"time"

	"github.com/ardnew/tracepoint/tracepoint"
)

// Tracepoint describes one listed tracepoint.
type Tracepoint struct {
	Module     string `json:"module"`
	Name       string `json:"name"`
	Func       string `json:"func,omitempty"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Enabled    bool   `json:"enabled"`
	Generation uint64 `json:"generation"`
}

func describe(s *tracepoint.Site) Tracepoint {
	d, c := s.Descriptor(), s.Cell()

	return Tracepoint{
		Module:     d.Module(),
		Name:       d.Name(),
		Func:       d.Func(),
		File:       d.File(),
		Line:       d.Line(),
		Enabled:    c.Enabled(),
		Generation: c.Generation(),
	}
}

// ToggleRequest selects tracepoints and the state to set.
type ToggleRequest struct {
	Filter tracepoint.FilterSpec `json:"filter"`
	Enable bool                  `json:"enable"`
}

// ToggleResponse reports how many tracepoints an enable request wrote.
type ToggleResponse struct {
	Matched int `json:"matched"`
}

// Failure is a tracepoint a configure request left unchanged.
type Failure struct {
	Tracepoint Tracepoint `json:"tracepoint"`
	Unit       string     `json:"unit"`
	Error      string     `json:"error"`
}

// ConfigureResponse mirrors [tracepoint.Report].
type ConfigureResponse struct {
	Matched    int           `json:"matched"`
	Updated    int           `json:"updated"`
	Recompiled []string      `json:"recompiled"`
	Failed     []Failure     `json:"failed,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

func newConfigureResponse(rp tracepoint.Report) ConfigureResponse {
	out := ConfigureResponse{
		Matched:    rp.Matched,
		Updated:    rp.Updated,
		Recompiled: rp.Recompiled,
		Elapsed:    rp.Elapsed,
	}

	for _, f := range rp.Failed {
		out.Failed = append(out.Failed, Failure{
			Tracepoint: describe(f.Site),
			Unit:       f.Unit,
			Error:      f.Err.Error(),
		})
	}

	return out
}

// MessageRequest sends a message to the process's sink. Color may be a color
// name, a 24-bit integer, or an array of three channels.
type MessageRequest struct {
	Text      string          `json:"text"`
	Color     json.RawMessage `json:"color,omitempty"`
	Callstack int             `json:"callstack,omitempty"`
}

// decodeColor converts the JSON color forms to values accepted by
// [tracepoint.ParseColor].
func decodeColor(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}

	switch c := v.(type) {
	case float64:
		if c != float64(int64(c)) {
			return c, nil // rejected by ParseColor
		}

		return int64(c), nil

	case []any:
		ch := make([]int, len(c))

		for i, x := range c {
			f, ok := x.(float64)
			if !ok || f != float64(int(f)) {
				return c, nil
			}

			ch[i] = int(f)
		}

		return ch, nil

	default:
		return v, nil
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

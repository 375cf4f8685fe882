package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Format selects the record encoding of a [Stream].
type Format uint8

const (
	FormatNDJSON  Format = iota // ndjson
	FormatMsgpack               // msgpack
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatNDJSON:
		return "ndjson"
	case FormatMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// ParseFormat converts a format name to a [Format].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ndjson", "json":
		return FormatNDJSON, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	default:
		return FormatNDJSON, fmt.Errorf(
			"invalid stream format: %q (expected: ndjson|msgpack)", s)
	}
}

// Kind tags a [Record].
type Kind string

const (
	KindBegin   Kind = "begin"
	KindSpan    Kind = "span"
	KindMessage Kind = "message"
)

// Record is the unit written to and read from an event stream.
type Record struct {
	Span    *SpanEvent    `json:"span,omitempty"    msgpack:"span,omitempty"`
	Message *MessageEvent `json:"message,omitempty" msgpack:"message,omitempty"`
	Kind    Kind          `json:"kind"              msgpack:"kind"`
	Seq     uint64        `json:"seq"               msgpack:"seq"`
}

type encoder interface {
	Encode(v any) error
}

// Stream writes every event as a [Record] to an [io.Writer].
//
// Write errors never reach the producer: the first one is kept and reported by
// [Stream.Err], and later events are discarded.
type Stream struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	w      io.Writer
	enc    encoder
	err    error
	seq    uint64
	format Format
}

// NewStream returns a stream sink encoding records to w.
func NewStream(w io.Writer, format Format) *Stream {
	s := &Stream{w: w, buf: bufio.NewWriter(w), format: format}

	switch format {
	case FormatMsgpack:
		enc := msgpack.NewEncoder(s.buf)
		enc.UseCompactInts(true)
		s.enc = enc
	default:
		s.enc = json.NewEncoder(s.buf)
	}

	return s
}

// Format returns the record encoding.
func (s *Stream) Format() Format { return s.format }

// EmitSpan implements [Sink].
func (s *Stream) EmitSpan(ev *SpanEvent) {
	s.write(Record{Kind: KindSpan, Span: ev})
}

// EmitBegin implements [BeginEmitter].
func (s *Stream) EmitBegin(ev *SpanEvent) {
	s.write(Record{Kind: KindBegin, Span: ev})
}

// EmitMessage implements [Sink].
func (s *Stream) EmitMessage(ev *MessageEvent) {
	s.write(Record{Kind: KindMessage, Message: ev})
}

func (s *Stream) write(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}

	s.seq++
	r.Seq = s.seq
	s.err = s.enc.Encode(r)
}

// Err returns the first write error, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Flush implements [Flusher].
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.err = s.buf.Flush()

	return s.err
}

// Close flushes buffered records and closes the writer if it is an
// [io.Closer].
func (s *Stream) Close() error {
	err := s.Flush()

	if c, ok := s.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}

	return err
}

// Decoder reads records written by a [Stream].
type Decoder struct {
	json *json.Decoder
	mp   *msgpack.Decoder
}

// NewDecoder returns a decoder for records in the given format.
func NewDecoder(r io.Reader, format Format) *Decoder {
	if format == FormatMsgpack {
		return &Decoder{mp: msgpack.NewDecoder(bufio.NewReader(r))}
	}

	return &Decoder{json: json.NewDecoder(r)}
}

// Next decodes the next record. It returns [io.EOF] at the end of the stream.
func (d *Decoder) Next() (Record, error) {
	var r Record

	var err error
	if d.mp != nil {
		err = d.mp.Decode(&r)
	} else {
		err = d.json.Decode(&r)
	}

	return r, err
}

// Records iterates over every record until the end of the stream or the first
// decode error, which is yielded once.
func (d *Decoder) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			r, err := d.Next()
			if err == io.EOF {
				return
			}

			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

// Package sink defines where tracepoint events go.
//
// The tracepoint engine hands every completed span and every message to a
// [Sink]. Implementations in this package cover the common cases:
//
//   - [Nop] discards everything and is the engine's default.
//   - [Stream] encodes [Record] values as NDJSON or msgpack to any writer;
//     [Decoder] reads them back (tpctl view uses it).
//   - [Log] writes events through the structured logger.
//   - [Async] puts a bounded queue in front of a slow sink so producers never
//     block.
//   - [Multi] and [Func] compose and adapt sinks.
//   - [Metrics] counts events into prometheus collectors.
//
// The otelsink subpackage exports spans to OpenTelemetry, and sinktest
// provides a recording sink for tests.
//
// A sink receives events synchronously on the goroutine that produced them.
// Panics raised by a sink are absorbed by the engine; they are never seen by
// the instrumented code.
package sink

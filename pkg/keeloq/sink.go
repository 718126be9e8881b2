package keeloq

import (
	"fmt"
	"io"
)

const (
	// RowBits holds one annotation per demodulated PWM bit.
	RowBits Row = iota
	// RowBytes holds one annotation per assembled byte.
	RowBytes
	// RowPortions holds the encrypted word, serial and button annotations.
	RowPortions
)

// Row is the annotation layer an Annotation belongs to.
type Row int

func (r Row) String() string {
	switch r {
	case RowBits:
		return "PWM bits"
	case RowBytes:
		return "KeeLoq bytes"
	case RowPortions:
		return "KeeLoq portions"
	default:
		return "unknown"
	}
}

// Annotation is a text label for the sample range [Start, End].
type Annotation struct {
	Row   Row
	Start uint64
	End   uint64
	Text  string
}

// Sink receives the output of a decoding session.
type Sink interface {
	// Annotate receives bit, byte and portion annotations in decoding order.
	Annotate(a Annotation)
	// Binary receives every assembled byte, in the same order as the byte annotations.
	Binary(start, end uint64, b byte)
	// Meta receives the average PWM base frequency (Hz) of a completed frame.
	Meta(start, end uint64, hz float64)
	// Frame receives a frame once its button portion is complete.
	Frame(f Frame)
}

// NopSink discards everything. Embed it to implement only parts of Sink.
type NopSink struct{}

func (NopSink) Annotate(Annotation) {}
func (NopSink) Binary(uint64, uint64, byte) {}
func (NopSink) Meta(uint64, uint64, float64) {}
func (NopSink) Frame(Frame) {}

type multiSink []Sink

func (m multiSink) Annotate(a Annotation) {
	for i := range m {
		m[i].Annotate(a)
	}
}

func (m multiSink) Binary(start, end uint64, b byte) {
	for i := range m {
		m[i].Binary(start, end, b)
	}
}

func (m multiSink) Meta(start, end uint64, hz float64) {
	for i := range m {
		m[i].Meta(start, end, hz)
	}
}

func (m multiSink) Frame(f Frame) {
	for i := range m {
		m[i].Frame(f)
	}
}

// MultiSink returns a Sink that hands everything to all of sinks, in order.
// For example:
//
//	sink := keeloq.MultiSink(keeloq.NewTextWriter(os.Stdout), keeloq.NewRawWriter(f))
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

// TextWriter prints annotations and frames as lines of text.
type TextWriter struct {
	NopSink
	w   io.Writer
	err error
}

// NewTextWriter creates a TextWriter writing to w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

func (t *TextWriter) Annotate(a Annotation) {
	t.printf("%d-%d %s: %s\n", a.Start, a.End, a.Row, a.Text)
}

func (t *TextWriter) Meta(start, end uint64, hz float64) {
	t.printf("%d-%d average PWM base frequency: %.1f Hz\n", start, end, hz)
}

func (t *TextWriter) Frame(f Frame) {
	t.printf("%d-%d frame: %v\n", f.Start, f.End, f)
}

// Err returns the first write error.
func (t *TextWriter) Err() error {
	return t.err
}

func (t *TextWriter) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

// RawWriter writes every assembled byte to the underlying writer (raw file).
type RawWriter struct {
	NopSink
	w   io.Writer
	n   int
	err error
}

// NewRawWriter creates a RawWriter writing to w.
func NewRawWriter(w io.Writer) *RawWriter {
	return &RawWriter{w: w}
}

func (r *RawWriter) Binary(_, _ uint64, b byte) {
	if r.err != nil {
		return
	}
	var n int
	n, r.err = r.w.Write([]byte{b})
	r.n += n
}

// Written returns the number of bytes written.
func (r *RawWriter) Written() int {
	return r.n
}

// Err returns the first write error.
func (r *RawWriter) Err() error {
	return r.err
}

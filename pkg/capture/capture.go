// Package capture reads line edges from capture files.
//
// Two formats are supported:
//   - sigrok session files (.sr), a zip archive with a metadata file and raw
//     logic samples; the sample rate is taken from the metadata.
//   - edge lists, a text file with one "<sample> <level>" pair per line,
//     optionally zstd compressed. A "# samplerate: <rate>" comment sets the
//     sample rate.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"keeloq/pkg/port"

	"github.com/klauspost/compress/zstd"
)

var (
	// ErrFormat reports a malformed capture file or sample rate.
	ErrFormat = errors.New("invalid capture file")
	// ErrChannel reports a channel index the capture does not contain.
	ErrChannel = errors.New("channel not in capture")
)

var (
	zipMagic  = []byte("PK\x03\x04")
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Reader is a port.Source reading a capture file.
type Reader struct {
	// SampleRate is the sample rate found in the file, 0 if unknown.
	SampleRate uint64
	// Format names the file format.
	Format string

	src    port.Source
	closer []io.Closer
}

// Open opens a capture file and selects the line at the zero based channel index.
// The channel is ignored for edge lists.
func Open(name string, channel int) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)

	switch {
	case bytes.Equal(magic, zipMagic):
		_ = f.Close()
		return openSigrok(name, channel)

	case bytes.Equal(magic, zstdMagic):
		d, err := zstd.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		r := NewEdgeList(d)
		r.Format = "edge list (zstd)"
		r.closer = append(r.closer, closerFunc(func() error { d.Close(); return nil }), f)
		return r, nil

	default:
		r := NewEdgeList(br)
		r.closer = append(r.closer, f)
		return r, nil
	}
}

// Next returns the next edge of the selected line.
func (r *Reader) Next() (port.Event, error) {
	return r.src.Next()
}

// Close releases the file.
func (r *Reader) Close() error {
	var err error
	for _, c := range r.closer {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ParseRate parses a sample rate such as "1 MHz", "500kHz" or "2000000".
func ParseRate(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	mult := 1.0
	for _, u := range []struct {
		suffix string
		mult   float64
	}{
		{"GHz", 1e9},
		{"MHz", 1e6},
		{"kHz", 1e3},
		{"Hz", 1},
	} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: invalid samplerate %q", ErrFormat, s)
	}
	return uint64(v*mult + 0.5), nil
}

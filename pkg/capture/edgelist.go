package capture

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"keeloq/pkg/port"
)

type edgeList struct {
	sc      *bufio.Scanner
	line    int
	pending string
	level   int
	last    uint64
}

// NewEdgeList reads an edge list from r.
// The leading comments are read immediately, so SampleRate is set on return.
// The first pair sets the initial line level; lines that do not change the
// level are skipped and sample indices must not decrease.
func NewEdgeList(r io.Reader) *Reader {
	e := &edgeList{sc: bufio.NewScanner(r), level: -1}
	rd := &Reader{Format: "edge list", src: e}

	for e.sc.Scan() {
		e.line++
		line := strings.TrimSpace(e.sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			e.pending = line
			break
		}
		if rate, ok := rateComment(line); ok {
			rd.SampleRate = rate
		}
	}
	return rd
}

func (e *edgeList) Next() (port.Event, error) {
	for {
		line, err := e.nextLine()
		if err != nil {
			return port.Event{}, err
		}

		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) != 2 {
			return port.Event{}, fmt.Errorf("%w: line %d: %q", ErrFormat, e.line, line)
		}
		sample, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return port.Event{}, fmt.Errorf("%w: line %d: %v", ErrFormat, e.line, err)
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil || (level != 0 && level != 1) {
			return port.Event{}, fmt.Errorf("%w: line %d: invalid level %q", ErrFormat, e.line, fields[1])
		}
		if e.level != -1 && sample < e.last {
			return port.Event{}, fmt.Errorf("%w: line %d: sample %d before %d", ErrFormat, e.line, sample, e.last)
		}
		e.last = sample

		prev := e.level
		e.level = level
		if prev == -1 || prev == level {
			continue
		}

		evt := port.Event{Sample: sample, Type: port.FallingEdge}
		if level == 1 {
			evt.Type = port.RisingEdge
		}
		return evt, nil
	}
}

// nextLine returns the next data line, skipping blank lines and comments.
func (e *edgeList) nextLine() (string, error) {
	if e.pending != "" {
		line := e.pending
		e.pending = ""
		return line, nil
	}

	for e.sc.Scan() {
		e.line++
		line := strings.TrimSpace(e.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := e.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// rateComment parses "# samplerate: 1 MHz".
func rateComment(line string) (uint64, bool) {
	k, v, ok := strings.Cut(strings.TrimPrefix(line, "#"), ":")
	if !ok || strings.TrimSpace(k) != "samplerate" {
		return 0, false
	}
	rate, err := ParseRate(v)
	return rate, err == nil
}

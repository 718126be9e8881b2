//go:build linux

package raspberry

import (
	"io"
	"sync"
	"time"

	"keeloq/pkg/port"

	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
)

// requestedLine is the part of *gpiod.Line used by ChipLine.
type requestedLine interface {
	Value() (int, error)
	Close() error
}

// ChipLine is a line requested from a gpio character device.
// Event timestamps are taken by the kernel.
type ChipLine struct {
	chip      io.Closer
	gpiodLine requestedLine
	debounce  time.Duration

	// mu guards lastValue and closed, the event handler runs in a gpiod goroutine
	mu        sync.Mutex
	lastValue int
	closed    bool
	// send edge changes to channel
	c chan port.Event
}

// openChipLine requests control of a single line on a chip.
// If granted, control is maintained until the Line is closed.
func openChipLine(gpio int, opts Options) (*ChipLine, error) {
	chip, err := gpiod.NewChip(opts.Chip)
	if err != nil {
		return nil, err
	}

	line := &ChipLine{
		chip:      chip,
		lastValue: -1,
		debounce:  opts.Debounce,
		c:         make(chan port.Event, events),
	}

	reqOpts := []gpiod.LineReqOption{gpiod.WithEventHandler(line.handler), gpiod.WithBothEdges, gpiod.AsInput}
	switch opts.Terminator {
	case "pullup":
		reqOpts = append(reqOpts, gpiod.WithPullUp)
	case "pulldown":
		reqOpts = append(reqOpts, gpiod.WithPullDown)
	}

	// the handler may run as soon as the line is requested
	line.mu.Lock()
	defer line.mu.Unlock()

	l, err := chip.RequestLine(gpio, reqOpts...)
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	line.gpiodLine = l

	if v, err := l.Value(); err == nil {
		line.lastValue = v
	}
	return line, nil
}

// handler is called by gpiod for each edge, one at a time.
// With debouncing, it waits for the bounce time and only reports the edge
// if the line still has a new level afterwards. The event keeps the
// timestamp of the first edge.
func (l *ChipLine) handler(evt gpiod.LineEvent) {
	v := 1
	if evt.Type == gpiod.LineEventFallingEdge {
		v = 0
	}

	if l.debounce > 0 {
		time.Sleep(l.debounce)

		var err error
		if v, err = l.gpiodLine.Value(); err != nil {
			debug.ErrorLog.Println(err)
			return
		}
	}

	if !l.report(v, uint64(evt.Timestamp)) {
		debug.TraceLog.Printf("no changed value on line %d, bounce signal", evt.Offset)
	}
}

// report sends an event if v is a new level of an open line.
func (l *ChipLine) report(v int, sample uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || v == l.lastValue {
		return false
	}

	l.lastValue = v
	l.c <- port.Event{Sample: sample, Type: edge(v)}
	return true
}

func (l *ChipLine) Events() <-chan port.Event {
	return l.c
}

// Close releases the line and the chip. The events channel is closed even
// if releasing fails, the first error is returned.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence the Close must not be called from the context of the event
// handler - the Close should be called from a different goroutine.
func (l *ChipLine) Close() error {
	err := l.gpiodLine.Close()

	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.c)
	}
	l.mu.Unlock()

	if e := l.chip.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

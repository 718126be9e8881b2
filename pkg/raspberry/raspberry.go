// Package raspberry is the watcher for gpio lines.
//
// A Line reports every level change of a gpio line as a port.Event. The
// sample index of an event is its timestamp in nanoseconds, so the sample
// rate of a Line is SampleRate.
package raspberry

import (
	"errors"
	"fmt"
	"time"

	"keeloq/pkg/port"
)

// SampleRate is the rate of the event sample indices (1 ns resolution).
const SampleRate = uint64(time.Second)

// events buffers edges while the decoder is busy
const events = 256

var (
	ErrInvalidParam = fmt.Errorf("invalid parameters")
	ErrUnsupported  = errors.New("gpio is not supported on this platform")
)

// Line represents a single watched gpio line.
type Line interface {
	// Events returns the channel of edge events. It is closed by Close.
	Events() <-chan port.Event
	// Close releases all resources held by the line.
	Close() error
}

// Options configure how a line is requested.
type Options struct {
	// Chip is the gpio character device, e.g. gpiochip0 (gpiod driver only).
	Chip string
	// Terminator is one of none, pullup or pulldown.
	Terminator string
	// Debounce is the time a new level must be stable. 0 disables debouncing.
	Debounce time.Duration
}

// Open requests the line gpio using driver "gpiod" (character device) or
// "gpiomem" (/dev/gpiomem).
func Open(driver string, gpio int, opts Options) (Line, error) {
	switch opts.Terminator {
	case "", "none", "pullup", "pulldown":
	default:
		return nil, ErrInvalidParam
	}

	var l Line
	var err error

	switch driver {
	case "gpiod", "":
		if opts.Chip == "" {
			opts.Chip = "gpiochip0"
		}
		l, err = openChipLine(gpio, opts)
	case "gpiomem":
		l, err = openMemLine(gpio, opts)
	default:
		return nil, ErrInvalidParam
	}

	if err != nil {
		return nil, err
	}
	return l, nil
}

// edge converts a level (0/1) into the event type of the change to it.
func edge(level int) port.EventType {
	if level == 0 {
		return port.FallingEdge
	}
	return port.RisingEdge
}

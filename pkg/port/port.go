// Package port holds the definition of a physical line and its edge events
package port

import (
	"errors"
	"io"
)

// ErrUnknownPolarity is returned by ParsePolarity for names other than active-high and active-low.
var ErrUnknownPolarity = errors.New("unknown polarity")

// EventType indicates the type of change to the line state.
type EventType int

const (
	_ EventType = iota
	// RisingEdge indicates a low to high transition.
	RisingEdge
	// FallingEdge indicates a high to low transition.
	FallingEdge
)

func (t EventType) String() string {
	switch t {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return "unknown"
	}
}

// Level returns the line level after the edge.
func (t EventType) Level() int {
	if t == RisingEdge {
		return 1
	}
	return 0
}

// Event is a single transition of the monitored line.
type Event struct {
	// Sample is the sample index at which the line changed.
	Sample uint64
	// The type of state change event this structure represents.
	Type EventType
}

// Condition selects the edges a wait is satisfied by.
type Condition int

const (
	// AnyEdge is satisfied by every transition.
	AnyEdge Condition = iota
	// Rising is satisfied by low to high transitions only.
	Rising
	// Falling is satisfied by high to low transitions only.
	Falling
)

func (c Condition) match(evt Event) bool {
	switch c {
	case Rising:
		return evt.Type == RisingEdge
	case Falling:
		return evt.Type == FallingEdge
	default:
		return true
	}
}

// Polarity selects which edge starts a PWM period.
type Polarity int

const (
	// ActiveHigh periods start with a rising edge.
	ActiveHigh Polarity = iota
	// ActiveLow periods start with a falling edge.
	ActiveLow
)

// ParsePolarity converts the option values "active-high" and "active-low".
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "active-high", "":
		return ActiveHigh, nil
	case "active-low":
		return ActiveLow, nil
	}
	return ActiveHigh, ErrUnknownPolarity
}

func (p Polarity) String() string {
	if p == ActiveLow {
		return "active-low"
	}
	return "active-high"
}

// Start returns the wait condition of the synchronizing edge.
func (p Polarity) Start() Condition {
	if p == ActiveLow {
		return Falling
	}
	return Rising
}

// Source is an ordered, blocking stream of line events.
// Next returns io.EOF when the stream is exhausted.
type Source interface {
	Next() (Event, error)
}

// Wait pulls events from src until one satisfies cond.
func Wait(src Source, cond Condition) (Event, error) {
	for {
		evt, err := src.Next()
		if err != nil {
			return evt, err
		}
		if cond.match(evt) {
			return evt, nil
		}
	}
}

// ChanSource reads events from a channel, e.g. the channel of a gpio line.
// A closed channel ends the stream.
type ChanSource <-chan Event

func (c ChanSource) Next() (Event, error) {
	evt, open := <-c
	if !open {
		return Event{}, io.EOF
	}
	return evt, nil
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	Events []Event
	ix     int
}

func (s *SliceSource) Next() (Event, error) {
	if s.ix >= len(s.Events) {
		return Event{}, io.EOF
	}
	evt := s.Events[s.ix]
	s.ix++
	return evt, nil
}

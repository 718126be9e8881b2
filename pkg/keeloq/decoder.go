// Package keeloq decodes the PWM bitstream of KeeLoq remote controls.
//
// A code word consists of a 32 bit encrypted (hopping) word, a 28 bit serial
// number and a 4 bit button field, sent LSB first. Each bit is one PWM period
// of about 1.1 ms; a short duty time is a 1, a long duty time is a 0.
//
// The decoder pulls edges from a port.Source, classifies each period with a
// pwm.Classifier and feeds the verdict to a State which assembles bits into
// bytes and portions:
//
//	dec := keeloq.NewDecoder(src, keeloq.NewTextWriter(os.Stdout), keeloq.Config{SampleRate: 1e6})
//	if err := dec.Run(); err != nil {
//		...
//	}
package keeloq

import (
	"errors"
	"fmt"
	"io"

	"keeloq/pkg/port"
	"keeloq/pkg/pwm"

	"github.com/womat/debug"
)

// ErrNoSampleRate is returned by Run if the session has no sample rate.
var ErrNoSampleRate = errors.New("cannot decode without samplerate")

// Config holds the parameters of a decoding session.
type Config struct {
	// SampleRate is the rate of the edge sample indices in samples per second.
	SampleRate uint64
	// Polarity selects the synchronizing edge.
	Polarity port.Polarity
	// Timing holds the classification thresholds, the zero value selects pwm.DefaultTiming.
	Timing pwm.Timing
	// OnResync is called with the bit count of every discarded partial frame.
	OnResync func(bits int)
}

// Decoder is a single decoding session on one edge source.
type Decoder struct {
	src        port.Source
	out        Sink
	polarity   port.Polarity
	classifier pwm.Classifier
	state      State
	onResync   func(int)

	// Periods counts the classified periods, Resyncs the discarded partial frames.
	Periods int
	Resyncs int
}

// NewDecoder creates a decoding session reading from src and writing to out.
func NewDecoder(src port.Source, out Sink, c Config) *Decoder {
	if c.Timing == (pwm.Timing{}) {
		c.Timing = pwm.DefaultTiming()
	}

	return &Decoder{
		src:        src,
		out:        out,
		polarity:   c.Polarity,
		classifier: pwm.New(c.SampleRate, c.Timing),
		onResync:   c.OnResync,
	}
}

// State returns a copy of the current decoder state.
func (d *Decoder) State() State {
	return d.state
}

// Run decodes until the source is exhausted.
// It waits for the synchronizing edge and then takes two edges per period.
// Run returns nil at the end of the stream and ErrNoSampleRate if the
// session has no sample rate.
func (d *Decoder) Run() error {
	if d.classifier.Rate == 0 {
		return ErrNoSampleRate
	}

	evt, err := port.Wait(d.src, d.polarity.Start())
	if err != nil {
		return endOfStream(err)
	}

	debug.DebugLog.Printf("synchronized on %v edge at sample %d", evt.Type, evt.Sample)
	d.state.Reset(evt.Sample)
	start := evt.Sample

	for {
		mid, err := port.Wait(d.src, port.AnyEdge)
		if err != nil {
			return endOfStream(err)
		}
		end, err := port.Wait(d.src, port.AnyEdge)
		if err != nil {
			return endOfStream(err)
		}

		d.step(pwm.Period{Start: start, Mid: mid.Sample, End: end.Sample})
		// the terminal edge starts the next period
		start = end.Sample
	}
}

func (d *Decoder) step(p pwm.Period) {
	c := d.classifier.Classify(p, d.state.Bits, d.state.Phase == Reading)
	d.Periods++

	debug.TraceLog.Printf("period %d-%d: %v, duty %v (%.2f), %v bit %d",
		p.Start, p.End, c.PeriodTime, c.DutyTime, c.Ratio, c.Verdict, c.Bit)

	if c.Verdict == pwm.Reject && d.state.Bits > 0 && d.state.Bits < buttonBits {
		d.Resyncs++
		debug.DebugLog.Printf("discarding partial frame after %d bits, wait for keeloq header", d.state.Bits)
		if d.onResync != nil {
			d.onResync(d.state.Bits)
		}
	}

	d.state.Step(c, p.End, d.out)
}

func endOfStream(err error) error {
	if err == io.EOF {
		return nil
	}
	return fmt.Errorf("reading edges: %w", err)
}

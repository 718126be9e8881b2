package keeloq

import (
	"fmt"
	"strconv"

	"keeloq/pkg/pwm"

	"gonum.org/v1/gonum/stat"
)

const (
	// Seek is the phase while waiting for data bits (preamble, header or noise).
	Seek Phase = iota
	// Reading is the phase while data bits are received.
	Reading
	// Finishing is the phase of the last bit of a frame.
	Finishing
)

// Phase represents the bit layer state of the decoding process.
type Phase int

func (p Phase) String() string {
	switch p {
	case Reading:
		return "reading"
	case Finishing:
		return "finishing"
	default:
		return "seek"
	}
}

// State holds the bit, byte and portion layers of a decoding session.
// The zero value waits for data bits at sample 0.
type State struct {
	// Phase is the bit layer state.
	Phase Phase
	// Bits is the count of bits accepted since the last frame reset.
	Bits int
	// Bytes is the count of bytes completed since the last frame reset.
	Bytes int

	// register is the byte being received, LSB first.
	register uint8
	// encrypted collects the first encryptedLen bytes.
	encrypted uint32
	serial    uint32
	button    uint8

	// bitPos, bytePos and portionPos are the start samples of the next
	// annotation of each layer.
	bitPos     uint64
	bytePos    uint64
	portionPos uint64
	// lastPeriod is the length of the last accepted data bit, in samples.
	lastPeriod uint64

	// frame collects the portions for the Frame report.
	frame Frame
	// periods are the accepted period times (seconds) of the current frame.
	periods []float64
}

// Step advances the state machine by one classified period that ended at
// sample and hands the resulting annotations to out.
//
// A rejected period resets the frame and emits nothing. The last bit of a
// frame is annotated up to the estimated end of the bit, since no edge
// bounds it, and resets the frame afterwards.
func (s *State) Step(c pwm.Classification, sample uint64, out Sink) {
	switch c.Verdict {
	case pwm.Header:
		s.Phase = Reading
	case pwm.FrameEnd:
		s.Phase = Finishing
	default:
		s.Reset(sample)
		return
	}

	s.Bits++
	bit := c.Bit

	end := sample
	if c.Verdict == pwm.FrameEnd {
		end = s.bitPos + s.lastPeriod
	}

	out.Annotate(Annotation{Row: RowBits, Start: s.bitPos, End: end, Text: strconv.Itoa(int(bit))})
	if c.Verdict == pwm.Header {
		// next bit starts here
		s.bitPos = sample
		s.lastPeriod = c.Period.Length()
		s.periods = append(s.periods, c.PeriodTime.Seconds())
	}

	s.register = s.register>>1 | bit<<7
	if s.Bits%8 == 0 {
		s.completeByte(sample, end, out)
	}

	// serial and button are not byte aligned, they are read bit by bit
	switch {
	case s.Bits > encryptedBits && s.Bits <= serialBits:
		s.serial |= uint32(bit) << (s.Bits - encryptedBits - 1)
		if s.Bits == serialBits {
			s.frame.Serial = s.serial
			s.putPortion(Serial, s.serial, sample, end, out)
		}
	case s.Bits > serialBits && s.Bits <= buttonBits:
		s.button |= bit << (s.Bits - serialBits - 1)
		if s.Bits == buttonBits {
			s.frame.Button = s.button
			s.putPortion(Button, uint32(s.button), sample, end, out)
			s.completeFrame(end, out)
		}
	}

	if c.Verdict == pwm.FrameEnd {
		s.Reset(sample)
	}
}

// completeByte handles the byte layer after every 8th bit.
func (s *State) completeByte(sample, end uint64, out Sink) {
	b := s.register
	out.Annotate(Annotation{Row: RowBytes, Start: s.bytePos, End: end, Text: fmt.Sprintf("0x%02X", b)})
	out.Binary(s.bytePos, end, b)

	s.bytePos = sample
	s.Bytes++
	s.register = 0

	if s.Bytes <= encryptedLen {
		// prepend: the first byte ends up least significant
		s.encrypted |= uint32(b) << (8 * (s.Bytes - 1))
	}
	if s.Bits == encryptedBits {
		s.frame.Encrypted = s.encrypted
		s.putPortion(Encrypted, s.encrypted, sample, end, out)
		s.encrypted = 0
	}
}

func (s *State) putPortion(k PortionKind, v uint32, sample, end uint64, out Sink) {
	out.Annotate(Annotation{Row: RowPortions, Start: s.portionPos, End: end, Text: k.format(v)})
	s.portionPos = sample
}

// completeFrame reports the frame and the average base frequency of its bits.
func (s *State) completeFrame(end uint64, out Sink) {
	s.frame.End = end
	if len(s.periods) > 0 {
		if mean := stat.Mean(s.periods, nil); mean > 0 {
			s.frame.BaseFrequency = 1 / mean
		}
	}

	out.Meta(s.frame.Start, s.frame.End, s.frame.BaseFrequency)
	out.Frame(s.frame)
}

// Reset discards the current frame and restarts waiting for data bits at sample.
func (s *State) Reset(sample uint64) {
	*s = State{
		Phase:      Seek,
		bitPos:     sample,
		bytePos:    sample,
		portionPos: sample,
		frame:      Frame{Start: sample},
		periods:    s.periods[:0],
	}
}

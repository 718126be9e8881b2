// Package pwm classifies the periods of a pulse-width modulated line.
//
// A period is bounded by three consecutive edges: start, mid and end. The
// time between start and mid is the duty (active) part of the period.
// The thresholds are fixed and match the nominal base frequency of KeeLoq
// transmitters; there is no adaptive clock recovery.
package pwm

import (
	"math"
	"math/bits"
	"time"
)

const (
	// Reject marks preamble, header noise or malformed periods.
	Reject Verdict = iota
	// Header marks a period within the data bit window.
	Header
	// FrameEnd marks the narrower, last bit of a frame.
	FrameEnd
)

// FrameBits is the number of payload bits that must be consumed before a
// period may be taken as the end of the frame.
const FrameBits = 64

// Verdict is the result of classifying a single period.
type Verdict int

func (v Verdict) String() string {
	switch v {
	case Header:
		return "header"
	case FrameEnd:
		return "frame-end"
	default:
		return "reject"
	}
}

// Acceptable reports whether the period carries a payload bit.
func (v Verdict) Acceptable() bool {
	return v == Header || v == FrameEnd
}

// Timing holds the classification thresholds.
type Timing struct {
	// HeaderMin and HeaderMax bound the period time of a data bit (inclusive).
	HeaderMin time.Duration
	HeaderMax time.Duration
	// FinishDutyMax is the exclusive upper duty time of the last bit.
	FinishDutyMax time.Duration
	// ZeroDutyMin is the duty time from which a bit decodes as 0.
	ZeroDutyMin time.Duration
}

// DefaultTiming returns the thresholds of typical KeeLoq transmitters.
func DefaultTiming() Timing {
	return Timing{
		HeaderMin:     1000 * time.Microsecond,
		HeaderMax:     1200 * time.Microsecond,
		FinishDutyMax: 900 * time.Microsecond,
		ZeroDutyMin:   600 * time.Microsecond,
	}
}

// Period holds the sample indices of the edges bounding one PWM period.
type Period struct {
	Start uint64
	Mid   uint64
	End   uint64
}

// Valid reports whether the edges are monotonic and the period is not empty.
func (p Period) Valid() bool {
	return p.Start <= p.Mid && p.Mid <= p.End && p.End > p.Start
}

// Length is the number of samples between start and end.
func (p Period) Length() uint64 {
	if !p.Valid() {
		return 0
	}
	return p.End - p.Start
}

// Duty is the number of samples between start and mid.
func (p Period) Duty() uint64 {
	if !p.Valid() {
		return 0
	}
	return p.Mid - p.Start
}

// Ratio is the duty cycle of the period.
func (p Period) Ratio() float64 {
	if !p.Valid() {
		return 0
	}
	return float64(p.Duty()) / float64(p.Length())
}

// Classification is the verdict on one period.
type Classification struct {
	Verdict Verdict
	// Bit is the demodulated value, only meaningful for acceptable verdicts.
	Bit    uint8
	Period Period

	PeriodTime time.Duration
	DutyTime   time.Duration
	Ratio      float64
}

// Classifier converts sample counts into time using Rate (samples per second).
type Classifier struct {
	Rate   uint64
	Timing Timing
}

// New returns a classifier with the given rate and thresholds.
func New(rate uint64, t Timing) Classifier {
	return Classifier{Rate: rate, Timing: t}
}

// Classify decides whether p is a data bit, the last bit of a frame or
// something to resynchronize on. bitsConsumed and reading describe the
// decoder state: the last bit can only follow more than FrameBits bits
// while reading.
//
// Classify never fails: malformed periods and a zero rate are rejected.
func (c Classifier) Classify(p Period, bitsConsumed int, reading bool) Classification {
	res := Classification{Verdict: Reject, Period: p}
	if c.Rate == 0 || !p.Valid() {
		return res
	}

	period, duty := p.Length(), p.Duty()
	res.PeriodTime = c.duration(period)
	res.DutyTime = c.duration(duty)
	res.Ratio = p.Ratio()

	switch {
	case c.compare(period, c.Timing.HeaderMin) >= 0 && c.compare(period, c.Timing.HeaderMax) <= 0:
		res.Verdict = Header
	case bitsConsumed > FrameBits && c.compare(duty, c.Timing.FinishDutyMax) < 0 && reading:
		res.Verdict = FrameEnd
	default:
		return res
	}

	res.Bit = c.Bit(duty)
	return res
}

// Bit demodulates a duty length: a duty time of at least ZeroDutyMin is a 0.
func (c Classifier) Bit(duty uint64) uint8 {
	if c.compare(duty, c.Timing.ZeroDutyMin) >= 0 {
		return 0
	}
	return 1
}

// compare returns -1, 0 or +1 when samples/Rate is less than, equal to or
// greater than d. The comparison is exact: both sides are scaled to 128 bit
// integers instead of dividing.
func (c Classifier) compare(samples uint64, d time.Duration) int {
	if d < 0 {
		return 1
	}
	ah, al := bits.Mul64(samples, uint64(time.Second))
	bh, bl := bits.Mul64(uint64(d), c.Rate)

	switch {
	case ah < bh || (ah == bh && al < bl):
		return -1
	case ah == bh && al == bl:
		return 0
	default:
		return 1
	}
}

// duration converts samples to time, saturating on overflow.
func (c Classifier) duration(samples uint64) time.Duration {
	hi, lo := bits.Mul64(samples, uint64(time.Second))
	if hi >= c.Rate {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, c.Rate)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(q)
}

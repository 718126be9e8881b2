package pwm

import (
	"testing"
	"time"
)

const rate = 1000000 // 1 MHz, one sample per µs

func period(start, duty, length uint64) Period {
	return Period{Start: start, Mid: start + duty, End: start + length}
}

func TestClassify(t *testing.T) {
	c := New(rate, DefaultTiming())

	for _, tc := range []struct {
		name    string
		p       Period
		bits    int
		reading bool
		want    Verdict
		bit     uint8
	}{
		{name: "header-lower-bound", p: period(100, 300, 1000), want: Header, bit: 1},
		{name: "header-upper-bound", p: period(100, 700, 1200), want: Header, bit: 0},
		{name: "header-nominal", p: period(0, 300, 1100), want: Header, bit: 1},
		{name: "too-short", p: period(0, 300, 999), want: Reject},
		{name: "too-long", p: period(0, 300, 1201), want: Reject},
		{name: "preamble", p: period(0, 400, 800), reading: true, bits: 12, want: Reject},
		{name: "frame-end", p: period(0, 400, 15000), bits: 65, reading: true, want: FrameEnd, bit: 1},
		{name: "frame-end-zero", p: period(0, 800, 15000), bits: 66, reading: true, want: FrameEnd, bit: 0},
		{name: "frame-end-too-early", p: period(0, 400, 15000), bits: 64, reading: true, want: Reject},
		{name: "frame-end-not-reading", p: period(0, 400, 15000), bits: 65, reading: false, want: Reject},
		{name: "frame-end-duty-too-long", p: period(0, 900, 15000), bits: 65, reading: true, want: Reject},
		{name: "header-wins-over-frame-end", p: period(0, 400, 1100), bits: 70, reading: true, want: Header, bit: 1},
		{name: "empty", p: Period{Start: 10, Mid: 10, End: 10}, want: Reject},
		{name: "mid-before-start", p: Period{Start: 10, Mid: 5, End: 1110}, want: Reject},
		{name: "end-before-mid", p: Period{Start: 10, Mid: 500, End: 400}, want: Reject},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.p, tc.bits, tc.reading)
			if got.Verdict != tc.want {
				t.Fatalf("invalid verdict: got=%v, want=%v", got.Verdict, tc.want)
			}
			if got.Verdict.Acceptable() && got.Bit != tc.bit {
				t.Fatalf("invalid bit: got=%d, want=%d", got.Bit, tc.bit)
			}
		})
	}
}

func TestClassifyWithoutRate(t *testing.T) {
	c := New(0, DefaultTiming())
	got := c.Classify(period(0, 300, 1100), 0, false)
	if got.Verdict != Reject {
		t.Fatalf("invalid verdict: got=%v, want=%v", got.Verdict, Reject)
	}
}

func TestBit(t *testing.T) {
	for _, tc := range []struct {
		rate uint64
		duty uint64
		want uint8
	}{
		{rate: rate, duty: 300, want: 1},
		{rate: rate, duty: 599, want: 1},
		{rate: rate, duty: 600, want: 0},
		{rate: rate, duty: 700, want: 0},
		{rate: 1000000000, duty: 599999, want: 1},
		{rate: 1000000000, duty: 600000, want: 0},
		{rate: 3000000, duty: 1800, want: 0},
		{rate: 3000000, duty: 1799, want: 1},
	} {
		c := New(tc.rate, DefaultTiming())
		if got := c.Bit(tc.duty); got != tc.want {
			t.Errorf("rate=%d duty=%d: got=%d, want=%d", tc.rate, tc.duty, got, tc.want)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := New(rate, DefaultTiming())
	p := period(4242, 650, 1150)

	first := c.Classify(p, 10, true)
	for i := 0; i < 10; i++ {
		if got := c.Classify(p, 10, true); got != first {
			t.Fatalf("classification changed: got=%+v, want=%+v", got, first)
		}
	}
}

func TestClassificationTimes(t *testing.T) {
	c := New(rate, DefaultTiming())
	got := c.Classify(period(0, 300, 1100), 0, false)
	if got.PeriodTime != 1100*time.Microsecond {
		t.Fatalf("invalid period time: %v", got.PeriodTime)
	}
	if got.DutyTime != 300*time.Microsecond {
		t.Fatalf("invalid duty time: %v", got.DutyTime)
	}
	if want := 300.0 / 1100.0; got.Ratio != want {
		t.Fatalf("invalid ratio: got=%v, want=%v", got.Ratio, want)
	}
}

func TestLargeSampleCounts(t *testing.T) {
	// one hour at 1 GHz does not overflow the comparison
	c := New(1000000000, DefaultTiming())
	got := c.Classify(Period{Start: 0, Mid: 1000, End: 3600 * 1000000000}, 0, false)
	if got.Verdict != Reject {
		t.Fatalf("invalid verdict: got=%v", got.Verdict)
	}
}

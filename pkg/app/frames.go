package app

import (
	"fmt"
	"sync"
	"time"

	"keeloq/pkg/keeloq"

	"github.com/womat/debug"
)

// history is the number of frames kept for the data web service.
const history = 16

// Record is a decoded code word as published to mqtt and the data web service.
type Record struct {
	TimeStamp     time.Time
	Encrypted     string
	Serial        string
	Button        string
	BaseFrequency float64
	Start         uint64
	End           uint64
}

func newRecord(f keeloq.Frame, now time.Time) Record {
	return Record{
		TimeStamp:     now,
		Encrypted:     fmt.Sprintf("0x%08X", f.Encrypted),
		Serial:        fmt.Sprintf("0x%07X", f.Serial),
		Button:        fmt.Sprintf("0x%X", f.Button),
		BaseFrequency: f.BaseFrequency,
		Start:         f.Start,
		End:           f.End,
	}
}

// frames holds the last decoded code words, newest first.
type frames struct {
	sync.RWMutex
	data []Record
}

func (f *frames) add(r Record) {
	f.Lock()
	defer f.Unlock()

	f.data = append([]Record{r}, f.data...)
	if len(f.data) > history {
		f.data = f.data[:history]
	}
}

func (f *frames) get() []Record {
	f.RLock()
	defer f.RUnlock()

	out := make([]Record, len(f.data))
	copy(out, f.data)
	return out
}

// sink receives the decoder output of the live session.
// It counts bits and bytes, stores and publishes every complete frame.
type sink struct {
	keeloq.NopSink
	app *App
}

func (s sink) Annotate(a keeloq.Annotation) {
	switch a.Row {
	case keeloq.RowBits:
		s.app.metrics.bits.Inc()
	case keeloq.RowBytes:
		s.app.metrics.bytes.Inc()
	}
}

func (s sink) Frame(f keeloq.Frame) {
	debug.InfoLog.Printf("received keeloq frame %v (%.1f Hz)", f, f.BaseFrequency)

	s.app.metrics.frames.Inc()
	s.app.metrics.baseFrequency.Set(f.BaseFrequency)

	r := newRecord(f, time.Now())
	s.app.frames.add(r)
	s.app.mqtt.Publish(s.app.config.MQTT.Topic, r)
}

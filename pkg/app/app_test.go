package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"keeloq/pkg/app/config"
	"keeloq/pkg/port"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/womat/debug"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }

func TestMain(m *testing.M) {
	debug.SetDebug(discard{}, debug.Standard)
	os.Exit(m.Run())
}

// codeWord returns the edges of one code word at 1 MHz: 64 periods of
// 1100 µs, a short duty time (300 µs) is a 1, a long one (700 µs) a 0.
func codeWord(t uint64, encrypted uint32, serial uint32, button uint8) []port.Event {
	word := uint64(encrypted) | uint64(serial)<<32 | uint64(button)<<60
	events := []port.Event{{Sample: t, Type: port.RisingEdge}}

	for i := 0; i < 64; i++ {
		duty := uint64(700)
		if word>>i&1 == 1 {
			duty = 300
		}
		events = append(events,
			port.Event{Sample: t + duty, Type: port.FallingEdge},
			port.Event{Sample: t + 1100, Type: port.RisingEdge},
		)
		t += 1100
	}
	return events
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	c := config.NewConfig()
	c.Polarity = port.ActiveHigh
	a, err := New(c)
	if err != nil {
		t.Fatalf("could not create app: %+v", err)
	}
	a.initDefaultRoutes()
	return a
}

func get(t *testing.T, a *App, path string) (int, []byte) {
	t.Helper()

	resp, err := a.web.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("request %s: %+v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("request %s: %+v", path, err)
	}
	return resp.StatusCode, body
}

func TestLiveSession(t *testing.T) {
	a := newTestApp(t)
	a.config.RawFile = filepath.Join(t.TempDir(), "keeloq.bin")

	events := codeWord(1000, 0x04030201, 0xABCDEF1, 0x9)
	if err := a.newDecoder(&port.SliceSource{Events: events}, 1000000); err != nil {
		t.Fatalf("could not create decoder: %+v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.decoder.Run(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	for _, tc := range []struct {
		name string
		got  float64
		want float64
	}{
		{"bits", testutil.ToFloat64(a.metrics.bits), 64},
		{"bytes", testutil.ToFloat64(a.metrics.bytes), 8},
		{"frames", testutil.ToFloat64(a.metrics.frames), 1},
		{"resyncs", testutil.ToFloat64(a.metrics.resyncs), 0},
	} {
		if tc.got != tc.want {
			t.Errorf("%s: got=%v, want=%v", tc.name, tc.got, tc.want)
		}
	}
	if hz := testutil.ToFloat64(a.metrics.baseFrequency); hz < 909 || hz > 910 {
		t.Errorf("invalid base frequency: %v", hz)
	}

	msg := <-a.mqtt.C
	if msg.Topic != "keeloq/frame" {
		t.Fatalf("invalid mqtt topic: %q", msg.Topic)
	}
	var r Record
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		t.Fatalf("invalid mqtt payload: %+v", err)
	}
	if r.Encrypted != "0x04030201" || r.Serial != "0xABCDEF1" || r.Button != "0x9" {
		t.Fatalf("invalid record: %+v", r)
	}

	_ = a.raw.Sync()
	raw, err := os.ReadFile(a.config.RawFile)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x01, 0x02, 0x03, 0x04, 0xF1, 0xDE, 0xBC, 0x9A}; !bytes.Equal(raw, want) {
		t.Fatalf("invalid raw file: got=% X, want=% X", raw, want)
	}
}

// chanLine is a gpio line fed by the test.
type chanLine chan port.Event

func (l chanLine) Events() <-chan port.Event { return l }
func (l chanLine) Close() error              { close(l); return nil }

func TestCloseDrainsDecoder(t *testing.T) {
	a := newTestApp(t)
	a.config.RawFile = filepath.Join(t.TempDir(), "keeloq.bin")

	events := codeWord(1000, 0x04030201, 0xABCDEF1, 0x9)
	line := make(chanLine, len(events))
	for _, e := range events {
		line <- e
	}
	a.line = line

	if err := a.newDecoder(port.ChanSource(a.line.Events()), 1000000); err != nil {
		t.Fatalf("could not create decoder: %+v", err)
	}
	a.startDecoder()

	if err := a.Close(); err != nil {
		t.Fatalf("could not close app: %+v", err)
	}

	select {
	case <-a.Shutdown():
	default:
		t.Fatalf("decoder still running after close")
	}

	raw, err := os.ReadFile(a.config.RawFile)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x01, 0x02, 0x03, 0x04, 0xF1, 0xDE, 0xBC, 0x9A}; !bytes.Equal(raw, want) {
		t.Fatalf("bytes lost on close: got=% X, want=% X", raw, want)
	}
}

func TestResyncMetric(t *testing.T) {
	a := newTestApp(t)

	events := codeWord(1000, 0, 0, 0)[:2*20+1]
	last := events[len(events)-1].Sample
	// a 3 ms period discards the partial frame
	events = append(events,
		port.Event{Sample: last + 300, Type: port.FallingEdge},
		port.Event{Sample: last + 3000, Type: port.RisingEdge},
	)
	if err := a.newDecoder(&port.SliceSource{Events: events}, 1000000); err != nil {
		t.Fatalf("could not create decoder: %+v", err)
	}
	if err := a.decoder.Run(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if got := testutil.ToFloat64(a.metrics.resyncs); got != 1 {
		t.Fatalf("invalid resyncs: %v", got)
	}
	if got := testutil.ToFloat64(a.metrics.frames); got != 0 {
		t.Fatalf("invalid frames: %v", got)
	}
}

func TestWebservices(t *testing.T) {
	a := newTestApp(t)
	if err := a.newDecoder(&port.SliceSource{Events: codeWord(0, 0x11223344, 0x1234567, 0x2)}, 1000000); err != nil {
		t.Fatalf("could not create decoder: %+v", err)
	}
	if err := a.decoder.Run(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	status, body := get(t, a, "/data")
	if status != 200 {
		t.Fatalf("data: invalid status %d", status)
	}
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatalf("data: %+v", err)
	}
	if len(records) != 1 || records[0].Serial != "0x1234567" || records[0].Encrypted != "0x11223344" {
		t.Fatalf("data: invalid records %s", body)
	}

	status, body = get(t, a, "/metrics")
	if status != 200 || !strings.Contains(string(body), "keeloq_frames_total 1") {
		t.Fatalf("metrics: invalid response %d %s", status, body)
	}

	status, body = get(t, a, "/version")
	if status != 200 || !strings.Contains(string(body), `"release":"1.0.10"`) || !strings.Contains(string(body), `"build":"20261001"`) {
		t.Fatalf("version: invalid response %d %s", status, body)
	}
	if got := Version(); got != "keeloq V1.0.10" {
		t.Fatalf("invalid version: %q", got)
	}

	status, body = get(t, a, "/health")
	if status != 200 || !strings.Contains(string(body), `"LastFrame":"20`) {
		t.Fatalf("health: invalid response %d %s", status, body)
	}
}

func TestDisabledWebservice(t *testing.T) {
	c := config.NewConfig()
	c.Webserver.Webservices["metrics"] = false
	a, err := New(c)
	if err != nil {
		t.Fatal(err)
	}
	a.initDefaultRoutes()

	if status, _ := get(t, a, "/metrics"); status != 404 {
		t.Fatalf("invalid status: %d", status)
	}
}

func TestFramesHistory(t *testing.T) {
	var f frames
	for i := 0; i < history+3; i++ {
		f.add(Record{Serial: fmt.Sprint(i)})
	}

	got := f.get()
	if len(got) != history {
		t.Fatalf("invalid length: %d", len(got))
	}
	if got[0].Serial != fmt.Sprint(history+2) {
		t.Fatalf("newest frame not first: %+v", got[0])
	}
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("# samplerate: 1 MHz\n0 0\n")
	for _, e := range codeWord(1000, 0x04030201, 0xABCDEF1, 0x9) {
		fmt.Fprintf(&b, "%d %d\n", e.Sample, e.Type.Level())
	}

	c := config.NewConfig()
	c.Capture = filepath.Join(dir, "keeloq.txt")
	c.RawFile = filepath.Join(dir, "keeloq.bin")
	if err := os.WriteFile(c.Capture, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Decode(c, &out); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	for _, want := range []string{
		"KeeLoq bytes: 0x01",
		"KeeLoq portions: encrypted word = 0x04030201",
		"KeeLoq portions: serial = 0xABCDEF1",
		"KeeLoq portions: button = 0x9",
		"frame: encrypted=0x04030201 serial=0xABCDEF1 button=0x9",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in output:\n%s", want, out.String())
		}
	}

	raw, err := os.ReadFile(c.RawFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 8 || raw[0] != 0x01 || raw[7] != 0x9A {
		t.Fatalf("invalid raw file: % X", raw)
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()

	c := config.NewConfig()
	c.Capture = filepath.Join(dir, "missing.txt")
	if err := Decode(c, io.Discard); err == nil {
		t.Fatalf("expected error for missing capture")
	}

	c.Capture = filepath.Join(dir, "norate.txt")
	if err := os.WriteFile(c.Capture, []byte("0 0\n10 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Decode(c, io.Discard); err == nil || !strings.Contains(err.Error(), "samplerate") {
		t.Fatalf("invalid error: %v", err)
	}
}

var errDiskFull = errors.New("no space left on device")

// failingFile accepts writes but fails to flush on close.
type failingFile struct{ bytes.Buffer }

func (*failingFile) Close() error { return errDiskFull }

func TestDecodeRawCloseError(t *testing.T) {
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("# samplerate: 1 MHz\n0 0\n")
	for _, e := range codeWord(1000, 0x04030201, 0xABCDEF1, 0x9) {
		fmt.Fprintf(&b, "%d %d\n", e.Sample, e.Type.Level())
	}

	c := config.NewConfig()
	c.Capture = filepath.Join(dir, "keeloq.txt")
	c.RawFile = filepath.Join(dir, "keeloq.bin")
	if err := os.WriteFile(c.Capture, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &failingFile{}
	defer func(create func(string) (io.WriteCloser, error)) { createRaw = create }(createRaw)
	createRaw = func(string) (io.WriteCloser, error) { return f, nil }

	if err := Decode(c, io.Discard); !errors.Is(err, errDiskFull) {
		t.Fatalf("invalid error: got=%v, want=%v", err, errDiskFull)
	}
	if f.Len() != 8 {
		t.Fatalf("invalid raw bytes: % X", f.Bytes())
	}
}

package mqtt

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/womat/debug"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }

func TestMain(m *testing.M) {
	debug.SetDebug(discard{}, debug.Standard)
	os.Exit(m.Run())
}

func TestPublish(t *testing.T) {
	m := New()
	m.Publish("keeloq/frame", struct{ Serial string }{Serial: "0x1234567"})

	msg := <-m.C
	if msg.Topic != "keeloq/frame" {
		t.Fatalf("invalid topic: %q", msg.Topic)
	}
	var got struct{ Serial string }
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("invalid payload: %+v", err)
	}
	if got.Serial != "0x1234567" {
		t.Fatalf("invalid payload: %s", msg.Payload)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	m := New()
	for i := 0; i < queue+5; i++ {
		m.Publish("keeloq/frame", i)
	}
	if got := len(m.C); got != queue {
		t.Fatalf("invalid queue length: got=%d, want=%d", got, queue)
	}
}

func TestClientID(t *testing.T) {
	a, b := ClientID(), ClientID()
	if !strings.HasPrefix(a, "keeloq-") || a == b {
		t.Fatalf("invalid client ids: %q %q", a, b)
	}
}

func TestWithoutBroker(t *testing.T) {
	m := New()
	if err := m.Connect(""); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if err := m.Disconnect(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

package app

import (
	"fmt"
	"io"
	"os"

	"keeloq/pkg/app/config"
	"keeloq/pkg/capture"
	"keeloq/pkg/keeloq"

	"github.com/womat/debug"
)

// createRaw creates the raw file of an offline session.
var createRaw = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// Decode decodes the capture file of c and prints the annotations to w.
// The sample rate of the configuration overrides the rate found in the file.
func Decode(c *config.Config, w io.Writer) (err error) {
	r, err := capture.Open(c.Capture, c.Channel)
	if err != nil {
		return fmt.Errorf("can't open capture %q: %w", c.Capture, err)
	}
	defer func() { _ = r.Close() }()

	rate := c.SampleRate
	if rate == 0 {
		rate = r.SampleRate
	}

	text := keeloq.NewTextWriter(w)
	sinks := []keeloq.Sink{text}

	var raw *keeloq.RawWriter
	if c.RawFile != "" {
		var f io.WriteCloser
		if f, err = createRaw(c.RawFile); err != nil {
			return fmt.Errorf("can't create raw file: %w", err)
		}
		defer func() {
			if e := f.Close(); e != nil && err == nil {
				err = fmt.Errorf("closing raw file: %w", e)
			}
		}()

		raw = keeloq.NewRawWriter(f)
		sinks = append(sinks, raw)
	}

	d := keeloq.NewDecoder(r, keeloq.MultiSink(sinks...), keeloq.Config{
		SampleRate: rate,
		Polarity:   c.Polarity,
		Timing:     c.Timing.Timing,
	})

	debug.InfoLog.Printf("decoding %s (%s, %d Hz, %v)", c.Capture, r.Format, rate, c.Polarity)
	if err = d.Run(); err != nil {
		return err
	}
	if err = text.Err(); err != nil {
		return err
	}
	if raw != nil {
		if err = raw.Err(); err != nil {
			return fmt.Errorf("writing raw file: %w", err)
		}
		debug.InfoLog.Printf("%d bytes written to %s", raw.Written(), c.RawFile)
	}

	debug.InfoLog.Printf("decoded %d periods, %d resyncs", d.Periods, d.Resyncs)
	return nil
}

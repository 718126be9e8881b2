package capture

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"keeloq/pkg/port"

	"github.com/klauspost/compress/zip"
	"gopkg.in/ini.v1"
)

const metadataFile = "metadata"

// sigrok session metadata of the first device
type metadata struct {
	captureFile string
	sampleRate  uint64
	unitSize    int
	probes      []string
}

// openSigrok opens a sigrok session file and streams the edges of channel.
func openSigrok(name string, channel int) (*Reader, error) {
	z, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	r, err := newSigrok(z.File, channel)
	if err != nil {
		_ = z.Close()
		return nil, err
	}
	r.closer = append(r.closer, z)
	return r, nil
}

func newSigrok(files []*zip.File, channel int) (*Reader, error) {
	var md *metadata
	for _, f := range files {
		if f.Name != metadataFile {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		md, err = parseMetadata(rc)
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
	}
	if md == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrFormat, metadataFile)
	}

	if channel < 0 || channel >= 8*md.unitSize || (len(md.probes) > 0 && channel >= len(md.probes)) {
		return nil, fmt.Errorf("%w: %d", ErrChannel, channel)
	}

	chunks := logicChunks(files, md.captureFile)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no logic data", ErrFormat)
	}

	src := &sigrokSource{
		files:   chunks,
		buf:     make([]byte, md.unitSize),
		channel: channel,
		level:   -1,
	}
	return &Reader{SampleRate: md.sampleRate, Format: "sigrok session", src: src, closer: []io.Closer{src}}, nil
}

// parseMetadata reads the [device 1] section of a session metadata file.
func parseMetadata(r io.Reader) (*metadata, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg, err := ini.Load(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	dev := cfg.Section("device 1")
	md := &metadata{
		captureFile: dev.Key("capturefile").MustString("logic-1"),
		unitSize:    1,
	}

	if dev.HasKey("samplerate") {
		if md.sampleRate, err = ParseRate(dev.Key("samplerate").String()); err != nil {
			return nil, err
		}
	}

	if dev.HasKey("unitsize") {
		n, err := dev.Key("unitsize").Int()
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: invalid unitsize %q", ErrFormat, dev.Key("unitsize").String())
		}
		md.unitSize = n
	}

	// probes are numbered from 1 without gaps
	for i := 1; dev.HasKey(fmt.Sprintf("probe%d", i)); i++ {
		md.probes = append(md.probes, dev.Key(fmt.Sprintf("probe%d", i)).String())
	}
	return md, nil
}

// logicChunks returns the data files of a capture in order:
// "logic-1" or "logic-1-1", "logic-1-2", ...
func logicChunks(files []*zip.File, captureFile string) []*zip.File {
	type chunk struct {
		n int
		f *zip.File
	}
	var chunks []chunk
	for _, f := range files {
		switch {
		case f.Name == captureFile:
			chunks = append(chunks, chunk{n: 0, f: f})
		case strings.HasPrefix(f.Name, captureFile+"-"):
			n, err := strconv.Atoi(strings.TrimPrefix(f.Name, captureFile+"-"))
			if err != nil {
				continue
			}
			chunks = append(chunks, chunk{n: n, f: f})
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].n < chunks[j].n })

	out := make([]*zip.File, len(chunks))
	for i, c := range chunks {
		out[i] = c.f
	}
	return out
}

type sigrokSource struct {
	files   []*zip.File
	ix      int
	rc      io.ReadCloser
	br      *bufio.Reader
	buf     []byte
	channel int
	sample  uint64
	level   int
}

func (s *sigrokSource) Next() (port.Event, error) {
	for {
		if s.br == nil {
			if s.ix >= len(s.files) {
				return port.Event{}, io.EOF
			}
			rc, err := s.files[s.ix].Open()
			if err != nil {
				return port.Event{}, err
			}
			s.ix++
			s.rc = rc
			s.br = bufio.NewReader(rc)
		}

		if _, err := io.ReadFull(s.br, s.buf); err != nil {
			_ = s.Close()
			switch err {
			case io.EOF:
				continue
			case io.ErrUnexpectedEOF:
				return port.Event{}, fmt.Errorf("%w: truncated sample %d", ErrFormat, s.sample)
			default:
				return port.Event{}, err
			}
		}

		n := s.sample
		s.sample++

		level := int(s.buf[s.channel/8]>>(s.channel%8)) & 1
		prev := s.level
		s.level = level
		if prev == -1 || prev == level {
			continue
		}

		evt := port.Event{Sample: n, Type: port.FallingEdge}
		if level == 1 {
			evt.Type = port.RisingEdge
		}
		return evt, nil
	}
}

// Close closes the chunk being read.
func (s *sigrokSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	s.br = nil
	return err
}

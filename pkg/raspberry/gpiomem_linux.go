//go:build linux

package raspberry

import (
	"sync"
	"time"

	"keeloq/pkg/port"

	"github.com/warthog618/gpio"
)

// MemLine is a pin watched through /dev/gpiomem.
// The driver has no kernel timestamps, events are stamped on arrival
// relative to the time the line was opened.
type MemLine struct {
	pin      *gpio.Pin
	opened   time.Time
	debounce time.Duration
	shadow   gpio.Level
	c        chan port.Event
	once     sync.Once
}

// openMemLine maps the GPIO memory range and watches the pin for changes to level.
// The pin number provided is the BCM GPIO number.
func openMemLine(p int, opts Options) (*MemLine, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}

	l := &MemLine{
		pin:      gpio.NewPin(p),
		opened:   time.Now(),
		debounce: opts.Debounce,
		c:        make(chan port.Event, events),
	}

	l.pin.Input()
	switch opts.Terminator {
	case "pullup":
		l.pin.PullUp()
	case "pulldown":
		l.pin.PullDown()
	}
	l.shadow = l.pin.Read()

	if err := l.pin.Watch(gpio.EdgeBoth, l.handler); err != nil {
		_ = gpio.Close()
		return nil, err
	}
	return l, nil
}

// handler ensures that a state change lasts for at least the bounce time,
// and only then reports it.
func (l *MemLine) handler(pin *gpio.Pin) {
	t := time.Since(l.opened)

	if l.debounce > 0 {
		time.Sleep(l.debounce)
	}

	level := pin.Read()
	if level == l.shadow {
		return
	}
	l.shadow = level

	v := 0
	if level {
		v = 1
	}
	l.c <- port.Event{Sample: uint64(t), Type: edge(v)}
}

func (l *MemLine) Events() <-chan port.Event {
	return l.c
}

// Close removes the watch and unmaps GPIO memory.
func (l *MemLine) Close() (err error) {
	l.once.Do(func() {
		l.pin.Unwatch()
		close(l.c)
		err = gpio.Close()
	})
	return err
}

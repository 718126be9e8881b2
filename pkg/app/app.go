package app

import (
	"fmt"
	"net/url"
	"os"

	"keeloq/pkg/app/config"
	"keeloq/pkg/keeloq"
	"keeloq/pkg/mqtt"
	"keeloq/pkg/port"
	"keeloq/pkg/raspberry"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// line is the watched gpio line of the receiver
	line raspberry.Line

	// decoder decodes the edges of line
	decoder *keeloq.Decoder

	// raw is the optional raw file of the assembled bytes
	raw *os.File

	// metrics holds the prometheus collectors
	metrics *metrics

	// frames are the last decoded code words
	frames frames

	// decoding is set once the decoder goroutine runs, it closes shutdown when done
	decoding bool
	// shutdown signals application shutdown
	shutdown chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    config,
		urlParsed: u,

		web:     fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt:    mqtt.New(),
		metrics: newMetrics(),

		shutdown: make(chan struct{}),
	}, err
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()
	app.startDecoder()

	return nil
}

// init initializes the application.
func (app *App) init() (err error) {
	c := app.config

	if app.line, err = raspberry.Open(c.Driver, c.Gpio, raspberry.Options{
		Chip:       c.Chip,
		Terminator: c.Terminator,
		Debounce:   c.BounceTime,
	}); err != nil {
		debug.ErrorLog.Printf("can't open gpio %v: %v", c.Gpio, err)
		return err
	}

	rate := c.SampleRate
	if rate == 0 {
		rate = raspberry.SampleRate
	}

	if err = app.newDecoder(port.ChanSource(app.line.Events()), rate); err != nil {
		return err
	}

	if err = app.mqtt.Connect(c.MQTT.Connection); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	// initDefaultRoutes should be always called last because it may access things like app.metrics
	// which must be initialized before
	app.initDefaultRoutes()

	return nil
}

// newDecoder creates the live decoding session on src.
func (app *App) newDecoder(src port.Source, rate uint64) error {
	var out keeloq.Sink = sink{app: app}

	if app.config.RawFile != "" {
		f, err := os.OpenFile(app.config.RawFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("can't open raw file: %w", err)
		}
		app.raw = f
		out = keeloq.MultiSink(out, keeloq.NewRawWriter(f))
	}

	app.decoder = keeloq.NewDecoder(src, out, keeloq.Config{
		SampleRate: rate,
		Polarity:   app.config.Polarity,
		Timing:     app.config.Timing.Timing,
		OnResync:   app.metrics.resync,
	})
	return nil
}

func (app *App) startDecoder() {
	app.decoding = true
	go app.decode()
}

// decode runs the decoder until the gpio line is closed.
func (app *App) decode() {
	defer close(app.shutdown)

	debug.InfoLog.Printf("waiting for keeloq frames on gpio %v (%v)", app.config.Gpio, app.config.Polarity)
	if err := app.decoder.Run(); err != nil {
		debug.ErrorLog.Printf("decoder stopped: %v", err)
		return
	}

	debug.InfoLog.Printf("decoder stopped after %d periods, %d resyncs", app.decoder.Periods, app.decoder.Resyncs)
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/keeloq.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

func (app *App) Close() (err error) {
	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}
	if app.line != nil {
		_ = app.line.Close()
	}
	// the decoder drains the closed line before the raw file may be closed
	if app.decoding {
		<-app.shutdown
	}
	if app.raw != nil {
		err = app.raw.Close()
	}
	if app.web != nil {
		_ = app.web.Shutdown()
	}
	return err
}

package main

import (
	"os"
	"os/signal"
	"sort"
	"syscall"

	"keeloq/pkg/app"
	"keeloq/pkg/app/config"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "KeeLoq decoder for 433 MHz remote controls",
		Version: app.VERSION,
		Description: "Decode the PWM code words of KeeLoq remote controls received on a gpio line" +
			"\n and publish encrypted word, serial and button to mqtt and the web services." +
			"\n With --capture a sigrok session or an edge list is decoded and the annotations are printed.",
		UsageText: "keeloq [--config <file>] [--log standard|debug|trace] [--capture <file>] [--raw <file>]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the decoder and use the configuration file keeloq.yaml" +
			"\n\t\tkeeloq --config /opt/womat/keeloq.yaml" +
			"\n\tdecode a capture of a 1 MHz logic analyzer" +
			"\n\t\tkeeloq --capture garage.sr --samplerate 1000000 --raw garage.bin",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: config.DefaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.Debug, Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
			&cli.StringFlag{Name: "capture", Aliases: []string{"f"}, Destination: &cfg.Flag.Capture, Usage: "decode the capture `FILE` instead of the gpio line"},
			&cli.StringFlag{Name: "polarity", Aliases: []string{"p"}, Destination: &cfg.Flag.Polarity, Usage: "`POLARITY` of the signal (active-high|active-low)"},
			&cli.Uint64Flag{Name: "samplerate", Aliases: []string{"r"}, Destination: &cfg.Flag.SampleRate, Usage: "`RATE` of the samples in Hz, overrides the capture file"},
			&cli.StringFlag{Name: "raw", Destination: &cfg.Flag.RawFile, Usage: "write the decoded bytes to `FILE`"},
		},
		Action: func(ctx *cli.Context) error {
			if err := cfg.LoadConfig(); err != nil {
				return err
			}

			debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
			defer func() {
				debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
				_ = cfg.Debug.File.Close()
			}()

			if cfg.Capture != "" {
				return app.Decode(cfg, os.Stdout)
			}

			a, err := app.New(cfg)
			defer func() {
				debug.InfoLog.Printf("closing app %s", app.Version())
				_ = a.Close()
			}()

			if err != nil {
				return err
			}

			debug.InfoLog.Printf("starting app %s", app.Version())
			if err = a.Run(); err != nil {
				return err
			}

			// capture exit signals to ensure resources are released on exit.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			// wait for am os.Interrupt signal (CTRL C) or the end of the gpio line
			select {
			case sig := <-quit:
				debug.InfoLog.Printf("Got %s signal. Aborting...", sig)
			case <-a.Shutdown():
				debug.InfoLog.Print("decoder stopped. Aborting...")
			}

			return nil
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
	return
}

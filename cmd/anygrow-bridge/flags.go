package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/banshee-data/anygrow.bridge/internal/config"
)

// options holds the command line flags. Flags that were set override the
// configuration file.
type options struct {
	configPath    string
	port          string
	listen        string
	dbPath        string
	logLevel      string
	logFormat     string
	disableSerial bool
	simulate      bool
	showVersion   bool

	fs *pflag.FlagSet
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("anygrow-bridge", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to a JSON configuration file")
	fs.StringVar(&o.port, "port", "", "Serial port of the Anygrow board (default from config)")
	fs.StringVar(&o.listen, "listen", "", "HTTP listen address (default from config)")
	fs.StringVar(&o.dbPath, "db-path", "", "Path to the SQLite database (default from config)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "", "Log format: json or console")
	fs.BoolVar(&o.disableSerial, "disable-serial", false, "Run without a serial port; HTTP and storage still serve")
	fs.BoolVar(&o.simulate, "simulate", false, "Use a simulated board instead of a serial port")
	fs.BoolVar(&o.showVersion, "version", false, "Print version information and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: anygrow-bridge [flags]\n       anygrow-bridge migrate|status|led ...\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.disableSerial && o.simulate {
		return nil, fmt.Errorf("--disable-serial and --simulate are mutually exclusive")
	}
	o.fs = fs
	return o, nil
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set on the command line.
func (o *options) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	if o.fs.Changed("port") {
		cfg.Serial.Port = o.port
	}
	if o.fs.Changed("listen") {
		cfg.Listen = o.listen
	}
	if o.fs.Changed("db-path") {
		cfg.DBPath = o.dbPath
	}
	if o.fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if o.fs.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

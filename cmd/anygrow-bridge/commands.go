package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/banshee-data/anygrow.bridge/internal/config"
	"github.com/banshee-data/anygrow.bridge/internal/db"
	"github.com/banshee-data/anygrow.bridge/internal/httputil"
)

const defaultAddr = "http://localhost:8080"

// runMigrate handles "migrate <action> [--db-path path] [--config file]".
func runMigrate(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db-path", "", "Path to the SQLite database (default from config)")
	configPath := fs.String("config", "", "Path to a JSON configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := config.Default().DBPath
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		path = cfg.DBPath
	}
	if fs.Changed("db-path") {
		path = *dbPath
	}
	return db.RunMigrateCommand(stdout, fs.Args(), path)
}

// runStatus prints /api/status of a running bridge.
func runStatus(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", defaultAddr, "Base URL of a running bridge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printStatus(context.Background(), http.DefaultClient, *addr, stdout)
}

func printStatus(ctx context.Context, client httputil.HTTPClient, addr string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var status json.RawMessage
	if err := httputil.GetJSON(ctx, client, strings.TrimRight(addr, "/")+"/api/status", &status); err != nil {
		return err
	}
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// runLED handles "led <off|on|mood> [--addr url]".
func runLED(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("led", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", defaultAddr, "Base URL of a running bridge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: anygrow-bridge led <off|on|mood> [--addr url]")
	}
	return setLED(context.Background(), http.DefaultClient, *addr, fs.Arg(0), stdout)
}

func setLED(ctx context.Context, client httputil.HTTPClient, addr, mode string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var resp struct {
		Mode string `json:"mode"`
	}
	err := httputil.PostFormJSON(ctx, client, strings.TrimRight(addr, "/")+"/api/led", url.Values{"mode": {mode}}, &resp)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "LED set to %s\n", resp.Mode)
	return nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ghalamif/sensorhub"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "export":
		err = exportCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "sensorhub %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
		NoColor:    os.Getenv("NO_COLOR") != "",
	})), nil
}

func loadConfig(path string) (*sensorhub.Config, error) {
	if path == "" {
		return sensorhub.DefaultConfig()
	}
	return sensorhub.LoadConfig(path)
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file (defaults to a simulation-only setup)")
	connect := fs.Bool("connect", false, "Open a session as soon as the runtime starts")
	simulate := fs.Bool("simulate", false, "Use the simulated device for the initial session")
	level := fs.String("log-level", "info", "Log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(*level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := sensorhub.NewRuntime(cfg, sensorhub.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *connect || *simulate {
		go func() {
			if err := rt.Connect(ctx, *simulate); err != nil {
				logger.Warn("initial connect failed", "err", err)
			}
		}()
	}

	logger.Info("sensorhub started",
		"transport", cfg.Transport.Kind,
		"api", cfg.API.Addr,
		"metrics", cfg.Metrics.Addr)
	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sensorhub.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good (transport=%s, %d simulated channels)\n",
		*cfgPath, cfg.Transport.Kind, len(cfg.Simulation.Channels))
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statKeys = []string{
	"sensorhub_readings_ingested_total",
	"sensorhub_history_length",
	"sensorhub_channels_active",
	"sensorhub_channels_stale",
	"sensorhub_channels_inactive",
	"sensorhub_spool_size_bytes",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scanMetrics(resp.Body, statKeys)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] readings=%.0f history=%.0f active=%.0f stale=%.0f inactive=%.0f spool_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		values[statKeys[0]], values[statKeys[1]], values[statKeys[2]],
		values[statKeys[3]], values[statKeys[4]], values[statKeys[5]])
	return nil
}

// scanMetrics picks unlabelled samples out of the Prometheus text format.
func scanMetrics(r io.Reader, keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range keys {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					out[key] = value
				}
			}
		}
	}
	return out, scanner.Err()
}

var errNoData = errors.New("no data to export")

func exportCommand(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	base := fs.String("url", "http://localhost:8080", "Base URL of a running sensorhub API")
	out := fs.String("out", "", "Output file (defaults to the name suggested by the server)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := http.Get(strings.TrimSuffix(*base, "/") + "/export.csv")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return errNoData
	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	name := *out
	if name == "" {
		name = attachmentName(resp.Header.Get("Content-Disposition"))
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", name, n)
	return nil
}

func attachmentName(disposition string) string {
	const key = "filename="
	if i := strings.Index(disposition, key); i >= 0 {
		if name := strings.Trim(disposition[i+len(key):], `"`); name != "" {
			return name
		}
	}
	return fmt.Sprintf("sensor_data_%d.csv", time.Now().UnixMilli())
}

func printUsage() {
	fmt.Printf(`sensorhub CLI

Usage:
  sensorhub <command> [flags]

Commands:
  run        Start the runtime: HTTP API, metrics and the staleness monitor
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters
  export     Download the current session history as CSV

Examples:
  sensorhub run -config ./data/config.yaml -connect
  sensorhub run -simulate
  sensorhub validate -config ./data/config.yaml
  sensorhub stats -url http://localhost:9100/metrics -interval 1s
  sensorhub export -url http://localhost:8080 -out session.csv
`)
}

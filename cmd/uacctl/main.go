// Command uacctl drives the USB audio class driver against a simulated
// headset. It can describe the attached function, play a WAV file to the
// headphones and record the microphone to a WAV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ardnew/softuac/host/class/audio"
	"github.com/ardnew/softuac/pkg"
	"github.com/ardnew/softuac/pkg/prof"
	"github.com/ardnew/softuac/pkg/usbid"
)

// Component identifier for uacctl logging.
const componentCtl pkg.Component = "uacctl"

var (
	verbose     = flag.Bool("v", false, "Enable verbose logging")
	jsonOut     = flag.Bool("json", false, "Output logs as JSON")
	configPath  = flag.String("config", "", "YAML configuration file")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. localhost:9090)")
	cpuProfile  = flag.String("cpuprofile", "", "Write a CPU profile to this file (requires -tags profile)")
	memProfile  = flag.String("memprofile", "", "Write a heap profile to this file (requires -tags profile)")
	duration    = flag.Duration("duration", 5*time.Second, "Capture duration")
	gainDB      = flag.String("gain", "", "Playback gain in dB")
	idsPath     = flag.String("usbids", "", "Path to the usb.ids database")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command> [args]

Commands:
  describe        Show the audio function, its paths and streams
  play FILE       Play a WAV file to the headphones
  capture FILE    Record the microphone to a WAV file

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	// Set up logging based on flags
	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	} else {
		pkg.SetLogLevel(slog.LevelInfo)
	}

	// Configure JSON output if requested
	if *jsonOut {
		pkg.SetLogger(pkg.NewJSONLogger(os.Stderr, &slog.HandlerOptions{
			Level: pkg.GetLogLevel(),
		}))
	}

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			pkg.LogInfo(componentCtl, "shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil && !errors.Is(err, context.Canceled) {
		pkg.LogError(componentCtl, "command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *metricsAddr != "" {
		cfg.Metrics = *metricsAddr
	}
	if *cpuProfile != "" {
		cfg.Profile.CPU = *cpuProfile
	}
	if *memProfile != "" {
		cfg.Profile.Heap = *memProfile
	}

	var gain *float64
	if *gainDB != "" {
		db, err := strconv.ParseFloat(*gainDB, 64)
		if err != nil {
			return fmt.Errorf("%w: gain %q", pkg.ErrInvalidParameter, *gainDB)
		}
		gain = &db
	}

	if !cfg.Profile.Empty() {
		if !prof.Enabled {
			pkg.LogWarn(componentCtl, "profiling requested but not compiled in")
		}
		ps, err := prof.Start(cfg.Profile)
		if err != nil {
			return err
		}
		defer func() {
			if err := ps.Stop(); err != nil {
				pkg.LogError(componentCtl, "write profiles", "error", err)
			}
		}()
	}

	var metrics *audio.StreamMetrics
	if cfg.Metrics != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if metrics, err = audio.NewStreamMetrics(reg); err != nil {
			return err
		}
		srv := serveMetrics(cfg.Metrics, reg)
		defer srv.Close()
	}

	s, err := openSession(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer s.close()

	switch command {
	case "describe":
		names := usbid.New()
		if *idsPath != "" {
			names = usbid.New(*idsPath)
		}
		if !names.Load() {
			pkg.LogDebug(componentCtl, "usb.ids not found, using built-in terminal names")
		}
		return runDescribe(s, names)
	case "play":
		if len(args) != 1 {
			return fmt.Errorf("%w: play needs one WAV file", pkg.ErrInvalidParameter)
		}
		return runPlay(ctx, s, cfg, args[0], gain)
	case "capture":
		if len(args) != 1 {
			return fmt.Errorf("%w: capture needs one WAV file", pkg.ErrInvalidParameter)
		}
		return runCapture(ctx, s, cfg, args[0], *duration)
	default:
		return fmt.Errorf("%w: unknown command %q", pkg.ErrInvalidParameter, command)
	}
}

// serveMetrics serves reg on /metrics, plus the pprof endpoints when
// profiling is compiled in.
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	prof.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkg.LogError(componentCtl, "metrics server failed", "error", err)
		}
	}()
	pkg.LogInfo(componentCtl, "serving metrics", "addr", addr)
	return srv
}

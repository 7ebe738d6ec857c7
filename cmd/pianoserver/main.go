// pianoserver is the real-time piano-practice engine's WebSocket server.
//
// Usage:
//
//	pianoserver [-addr :8080] [-config preset.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/pianopractice/internal/config"
	"github.com/hammamikhairi/pianopractice/internal/detect"
	"github.com/hammamikhairi/pianopractice/internal/exercise"
	"github.com/hammamikhairi/pianopractice/internal/harmonic"
	"github.com/hammamikhairi/pianopractice/internal/logger"
	"github.com/hammamikhairi/pianopractice/internal/mono"
	"github.com/hammamikhairi/pianopractice/internal/onset"
	"github.com/hammamikhairi/pianopractice/internal/poly"
	"github.com/hammamikhairi/pianopractice/internal/ring"
	"github.com/hammamikhairi/pianopractice/internal/session"
	"github.com/hammamikhairi/pianopractice/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "path to a YAML tuning preset (optional, defaults built in)")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", "", "file to write logs to (default: stderr)")
	modelPath := flag.String("model-path", "", "path to the polyphonic transcriber ONNX model (chord/hybrid modes degrade to mono+CQT if unset)")
	modelLibPath := flag.String("model-lib-path", "", "path to the onnxruntime shared library")
	flag.Parse()

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	var logOut io.Writer = os.Stderr
	if *logFile != "" {
		dir := filepath.Dir(*logFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("config: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Build the shared, read-only PipelineContext: every component that
	// is safe to share across sessions is constructed exactly once
	// here, replacing the lazy global singletons a naive port would
	// reach for.
	monoPreset := mono.PresetV3
	if cfg.Mono.Preset == "v2" {
		monoPreset = mono.PresetV2
	}
	monoEstimator := mono.New(cfg.Ring.SampleRate, monoPreset)

	cqt := detect.NewCQTFallback(cfg.Onset.FFTSize, cfg.Ring.SampleRate, 21, 108, 0.15)

	var transcriber *poly.Transcriber
	if *modelPath != "" && *modelLibPath != "" {
		model, err := poly.NewOnnxModel(poly.OnnxConfig{
			SharedLibPath:  *modelLibPath,
			ModelPath:      *modelPath,
			InputName:      "audio",
			FrameOutput:    "frame_probs",
			OnsetOutput:    "onset_probs",
			OffsetOutput:   "offset_probs",
			VelocityOutput: "velocities",
		}, log.Named("poly"))
		if err != nil {
			log.Error("polyphonic model init failed, chord/hybrid modes will degrade to mono+CQT: %v", err)
		} else {
			transcriber = poly.NewTranscriber(model)
			defer model.Close()
			log.Info("polyphonic transcriber loaded from %s", *modelPath)
		}
	} else {
		log.Info("no polyphonic model configured; chord/hybrid modes use mono+CQT only")
	}

	arbiter := detect.New(monoEstimator, transcriber, cqt, detect.MatchConfig{
		SemitoneToleranceSemitones: cfg.Detect.SemitoneToleranceSemitones,
	})

	registry := session.NewMemoryRegistry(log.Named("registry"))
	exercises := exercise.NewMemorySource(log.Named("exercise"))

	deps := session.Deps{
		Log:      log,
		Registry: registry,
		RingConfig: ring.Config{
			WindowSamples: cfg.Ring.WindowSamples,
			HopRatio:      cfg.Ring.HopRatio,
			SampleRate:    cfg.Ring.SampleRate,
		},
		OnsetConfig: onset.Config{
			FFTSize:         cfg.Onset.FFTSize,
			EnergyThreshold: cfg.Onset.EnergyThreshold,
			SampleRate:      cfg.Ring.SampleRate,
			HistorySize:     cfg.Onset.HistorySize,
		},
		ConsensusConfig: harmonic.ConsensusConfig{
			DedupWindowS: float64(cfg.Harmonic.DedupWindowMs) / 1000.0,
		},
		SlowPathWorkers: cfg.SlowPathWorkers,
	}

	reaper := session.NewReaper(registry, log.Named("reaper"))
	reaper.Start(ctx)
	defer reaper.Stop()

	server := ws.NewServer(log, deps, cfg, exercises, func() *detect.Arbiter { return arbiter })

	mux := http.NewServeMux()
	mux.Handle("/", server)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("pianoserver listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server: %v", err)
		os.Exit(1)
	}
}

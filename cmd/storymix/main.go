// Command storymix turns prose into a four-track audio drama.
//
// Usage:
//
//	storymix serve  -config config.yaml
//	storymix render -config config.yaml -in story.txt -out ./mix
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MrWong99/storymix/internal/app"
	"github.com/MrWong99/storymix/internal/config"
	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage(os.Stderr)
		return 2
	}
	switch args[0] {
	case "serve":
		return serve(args[1:])
	case "render":
		return render(args[1:])
	case "-h", "-help", "--help", "help":
		usage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "storymix: unknown command %q\n", args[0])
		usage(os.Stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  storymix serve  -config config.yaml")
	fmt.Fprintln(w, "  storymix render -config config.yaml -in story.txt -out ./mix")
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.Info("storymix starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "storymix",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if watcher != nil {
		watcher.Stop()
	}
	code := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	slog.Info("goodbye")
	return code
}

// ── render ────────────────────────────────────────────────────────────────────

func render(args []string) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	inPath := fs.String("in", "-", "prose input file, - for stdin")
	outDir := fs.String("out", ".", "directory the four WAV tracks are written to")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: app.SlogLevel(cfg.Server.LogLevel)})))

	text, err := readInput(*inPath)
	if err != nil {
		slog.Error("failed to read input", "path", *inPath, "err", err)
		return 1
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.LLM == nil || providers.TTS == nil {
		slog.Error("render needs both an llm and a tts provider",
			"llm", cfg.Providers.LLM.Name, "tts", cfg.Providers.TTS.Name)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = application.Shutdown(shutdownCtx)
	}()

	tracks, err := renderTracks(ctx, application, text)
	if err != nil {
		slog.Error("render failed", "err", err)
		return 1
	}
	if err := writeTracks(*outDir, tracks); err != nil {
		slog.Error("failed to write tracks", "dir", *outDir, "err", err)
		return 1
	}
	fmt.Printf("wrote %d tracks (%s) to %s\n", len(script.Tracks), tracks.Duration.Round(time.Millisecond), *outDir)
	return 0
}

func renderTracks(ctx context.Context, a *app.App, text string) (*script.AudioTracks, error) {
	sess, err := a.Sessions().Current()
	if err != nil {
		return nil, err
	}
	sc, err := sess.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	slog.Info("script analyzed", "segments", len(sc.Segments), "mood", sc.Scene.Mood, "cast", sess.Cast())
	return sess.Generate(ctx)
}

// writeTracks writes one WAV file per track into dir.
func writeTracks(dir string, tracks *script.AudioTracks) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, t := range script.Tracks {
		path := filepath.Join(dir, t.String()+".wav")
		if err := writeWAVFile(path, tracks.Clip(t)); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func writeWAVFile(path string, c *audio.Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audio.WriteWAV(f, c); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readInput(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func loadConfig(path string) (*config.Config, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "storymix: config file %q not found; copy configs/example.yaml to get started\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "storymix: %v\n", err)
		}
		return nil, false
	}
	c := cfg.WithDefaults()
	return &c, true
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        storymix startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printEntry("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printEntry("Playback", cfg.Playback.Device, "")
	fmt.Printf("║  Voices          : %-19d ║\n", len(cfg.Voices.Catalogue))
	fmt.Printf("║  Speech workers  : %-19d ║\n", cfg.Generation.SpeechConcurrency)
	fmt.Printf("║  Effect workers  : %-19d ║\n", cfg.Generation.EffectsConcurrency)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

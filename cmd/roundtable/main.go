// Command roundtable runs multi-agent sessions from the command line or
// serves them over HTTP and websockets.
//
//	roundtable run [-config roundtable.yaml] <goal>
//	roundtable serve [-config roundtable.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hupe1980/roundtable"
	"github.com/hupe1980/roundtable/artifact"
	"github.com/hupe1980/roundtable/config"
	"github.com/hupe1980/roundtable/engine"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/metrics"
	"github.com/hupe1980/roundtable/relay/speech"
	"github.com/hupe1980/roundtable/server"
	"github.com/hupe1980/roundtable/session"
)

const usage = `Usage:
  roundtable run [-config file] <goal>   run one session and print the transcript
  roundtable serve [-config file]        serve the HTTP API and websocket relay
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		goal := strings.Join(fs.Args(), " ")
		return runOnce(ctx, cfg, goal, stdout, stderr)
	case "serve":
		return serve(ctx, cfg, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// app bundles a configured Roundtable with the resources to release.
type app struct {
	rt      *roundtable.Roundtable
	logger  logging.Logger
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := cfg.NewLogger(logOut)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger}

	m, err := newModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := newMemoryStore(ctx, cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("memory backend %s: %w", cfg.Memory.Backend, err)
	}
	a.closers = append(a.closers, closeStore)

	hooks := append(engine.LoggingHooks(logger), metrics.Hooks()...)

	rt, err := roundtable.New(m, func(o *roundtable.Options) {
		o.EngineConfig = cfg.EngineConfig()
		o.MaxGenerations = cfg.Engine.MaxGenerations
		o.Review = cfg.Planner.Review
		o.Stages = cfg.Stages()
		o.Policy = cfg.OffTopicPolicy()
		o.MemoryStore = store
		o.SessionStore = session.NewInMemoryStore()
		o.Observers = append(o.Observers, metrics.Observer())
		o.Hooks = hooks
		o.OnGenerate = metrics.ObserveGeneration
		o.OutputPath = cfg.OutputPath
		if cfg.ArtifactsDir != "" {
			o.Artifacts = artifact.NewDirStore(cfg.ArtifactsDir)
		}
		o.Logger = logger
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rt = rt

	if cfg.Speech.Enabled {
		relay, err := speech.New(speech.CommandSpeaker{Command: cfg.Speech.Command, Args: cfg.Speech.Args}, func(o *speech.Options) {
			if len(cfg.Speech.Voices) > 0 {
				o.Voices = cfg.Speech.Voices
			}
			o.QueueSize = cfg.Speech.QueueSize
			o.Logger = logger
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		unsubscribe := rt.Subscribe(relay)
		rt.AddHook(relay.SpawnHook())
		a.closers = append(a.closers, func() {
			unsubscribe()
			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = relay.Close(closeCtx)
		})
	}

	return a, nil
}

func runOnce(ctx context.Context, cfg *config.Config, goal string, stdout, stderr io.Writer) error {
	if strings.TrimSpace(goal) == "" {
		return errors.New("no goal provided")
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.rt.RunAgents(ctx, goal)
	if res == nil {
		return err
	}

	fmt.Fprintf(stdout, "Run %s finished after %d rounds (%s)\n\n", res.RunID, res.Rounds, res.Termination)
	for _, msg := range res.Transcript {
		fmt.Fprintf(stdout, "[%s -> %s] %s\n\n", msg.From, msg.To, msg.Content)
	}

	fmt.Fprintln(stdout, "Agent memories:")
	for _, info := range res.Agents {
		fmt.Fprintf(stdout, "  %s (%s)\n", info.ID, info.Role)
		for _, entry := range res.Snapshot[info.ID] {
			fmt.Fprintf(stdout, "    - %s\n", entry)
		}
	}
	if res.PersistFailures > 0 {
		fmt.Fprintf(stdout, "\nwarning: %d memory snapshot writes failed\n", res.PersistFailures)
	}
	return err
}

func serve(ctx context.Context, cfg *config.Config, stderr io.Writer) error {
	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.rt, func(o *server.Options) {
		o.Addr = cfg.Server.Addr
		o.AllowedOrigins = cfg.Server.AllowedOrigins
		o.Logger = a.logger
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("Server stopped")
	return <-errCh
}

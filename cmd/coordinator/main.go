// Command coordinator starts one session coordinator: it loads the YAML
// session configuration, builds the registered controller, wires the
// Communicator/Driver/Persister together, and serves the TCP listener
// until interrupted.
//
// Grounded on the teacher's cmd/gameserver main.go: config loaded first to
// set the log level, a cancellable root context wired to SIGINT/SIGTERM,
// and a run(ctx) error return rather than inline os.Exit calls.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/exp/sessioncoordinator/internal/cfg"
	"github.com/exp/sessioncoordinator/internal/comm"
	"github.com/exp/sessioncoordinator/internal/driver"
	"github.com/exp/sessioncoordinator/internal/persist"
	"github.com/exp/sessioncoordinator/internal/session"

	_ "github.com/exp/sessioncoordinator/internal/controllers/cda"
	_ "github.com/exp/sessioncoordinator/internal/controllers/quiz"
)

const defaultConfigPath = "config/coordinator.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := defaultConfigPath
	if p := os.Getenv("COORDINATOR_CONFIG"); p != "" {
		configPath = p
	}

	conf, err := cfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(conf.LogLevel),
	})))

	slog.Info("session coordinator starting", "controller", conf.Controller, "port", conf.Port)

	controller, err := driver.Build(conf.Controller, conf.ControllerParams)
	if err != nil {
		return fmt.Errorf("building controller %q: %w", conf.Controller, err)
	}

	sessionID := persist.NewSessionID()
	writer := persist.New(conf.OutputDir, sessionID)
	if err := writer.DumpParams(conf.ControllerParams); err != nil {
		// §9: an unwritable output directory is a fatal StateError at
		// session start.
		return fmt.Errorf("state error: output directory not writable: %w", err)
	}
	if path, ok := controller.GetSurveyFile(); ok {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("state error: survey file %q: %w", path, err)
		}
	}

	table := session.NewTable(controller.GetNumPlayers())
	communicator := comm.New(nil, comm.Config{
		PingInterval: conf.PingInterval(),
		IdleTimeout:  conf.IdleTimeout(),
		LoginTimeout: conf.LoginTimeout(),
	})
	d := driver.New(table, communicator, controller, writer)
	communicator.SetHandler(d)

	addr := fmt.Sprintf("%s:%d", conf.BindAddress, conf.Port)
	ln, err := listenReusable(addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()

	slog.Info("listening", "addr", addr, "session_id", sessionID)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- communicator.Serve(ctx, ln) }()

	driverErrCh := make(chan error, 1)
	go func() { driverErrCh <- d.Start(ctx, conf.Autostart) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("communicator serve: %w", err)
		}
		return nil
	case err := <-driverErrCh:
		return err
	}
}

// listenReusable mirrors the teacher's SO_REUSEADDR listener setup (§6):
// net.Listen on "tcp" already sets SO_REUSEADDR on POSIX platforms, so no
// extra syscall plumbing is required here.
func listenReusable(addr string) (net.Listener, error) {
	return net.Listen("tcp4", addr)
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

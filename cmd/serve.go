package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/civicadmin/internal/api"
	"github.com/joescharf/civicadmin/internal/daemon"
	"github.com/joescharf/civicadmin/internal/store"
	"github.com/joescharf/civicadmin/internal/web"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local REST API",
	Long: `Start an HTTP server exposing the dashboard and issue triage as JSON:

  GET /api/v1/stats
  GET /api/v1/issues?search=
  GET /api/v1/issues/{id}
  PUT /api/v1/issues/{id}     {"status": "...", "expected": "..."}
  GET /api/v1/activity?limit=&kind=&issue=&failed=

The triage page is served at /. By default it listens on port 8080 in the foreground. Use 'serve start' to
run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "civicadmin-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "civicadmin-serve.log")
}

// newAPIServer wires the REST surface over fresh view models. The returned
// cleanup closes the view models.
func newAPIServer() (*api.Server, func(), error) {
	client, err := newAPIClient()
	if err != nil {
		return nil, nil, err
	}

	var journal store.Store
	if s, err := getStore(); err == nil {
		journal = s
	} else {
		ui.Warning("Activity journal unavailable: %v", err)
	}

	opts := viewModelOptions()
	stats := viewmodel.NewStats(client, opts...)
	issues := viewmodel.NewIssues(client, opts...)
	cleanup := func() {
		stats.Close()
		issues.Close()
	}
	return api.NewServer(stats, issues, journal, slog.Default()), cleanup, nil
}

// serveHandler mounts the REST API under /api/ and the triage page at /.
func serveHandler(srv *api.Server) (http.Handler, error) {
	page, err := web.Handler()
	if err != nil {
		return nil, fmt.Errorf("load UI: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/", srv.Router())
	mux.Handle("/", page)
	return mux, nil
}

func serveRun(ctx context.Context) error {
	srv, cleanup, err := newAPIServer()
	if err != nil {
		return err
	}
	defer cleanup()

	handler, err := serveHandler(srv)
	if err != nil {
		return err
	}

	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	ui.Success("Serving triage page at http://localhost%s and API at /api/v1", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	ui.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("%w (pid %d)", daemon.ErrRunning, pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would run %s %v, logging to %s", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(serveLogPath()), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := child.Process.Release(); err != nil {
		return fmt.Errorf("detach server: %w", err)
	}

	ui.Success("API server started (pid %d), logging to %s", child.Process.Pid, serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("API server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop API server (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			_ = pf.Remove()
			ui.Success("API server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	ui.Warning("API server did not stop in %s, killing pid %d", shutdownTimeout, pid)
	if err := pf.Signal(sigKILL()); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	_ = pf.Remove()
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("API server is not running")
		return nil
	}
	ui.Success("API server is running (pid %d) on port %d", pid, viper.GetInt("port"))
	return nil
}

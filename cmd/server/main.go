/*
main.go - Application entry point

PURPOSE:
  Command-line front end of the classroom attendance server. The default
  use is `attendance-server serve`; the other commands run one-off
  maintenance jobs against the same database without starting HTTP.

COMMANDS:
  serve                       Start the HTTP API (and static front end)
  clear [--yes]               Empty every table
  import courses <file>       Upsert courses from an xlsx sheet
  import enrollments <file>   Upsert course-student mappings from an xlsx sheet
  seed                        Load the built-in demo roster

STARTUP SEQUENCE (serve):
  1. Load .env into the environment, then read attendance.yaml
  2. Build the root logger from log.level / log.format
  3. Open the SQLite store (schema is created on open)
  4. Create metrics, API handler and router
  5. Start server with graceful shutdown

FLAGS:
  --config       Config file (default: ./attendance.yaml if present)
  --db           SQLite database path ("" uses database.path)
                 Use ":memory:" for an in-memory database
  --log-level    debug, info, warn, error
  --log-format   text, json
  serve only:
  --host, --port, --static-dir, --uploads-dir

ENVIRONMENT:
  Every config key can be set as ATTENDANCE_<KEY>, dots as underscores:
  ATTENDANCE_SERVER_PORT=3001, ATTENDANCE_ADMIN_PASSWORD=...

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./attendance-server serve --db=./data/attendance.db

  # Run with in-memory database on a different port
  ./attendance-server serve --db=":memory:" --port=3000

  # Import a course sheet, then wipe everything without prompting
  ./attendance-server import courses courses.xlsx
  ./attendance-server clear --yes

SEE ALSO:
  - commands.go: clear, import and seed
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/logging"
	"github.com/warp/attendance-engine/metrics"
	"github.com/warp/attendance-engine/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every command needs once flags are parsed.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func rootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:          "attendance-server",
		Short:        "Classroom attendance server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./attendance.yaml)")
	pf.String("db", "", `SQLite database path (":memory:" for in-memory)`)
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text, json")
	mustBind(a.v, pf, map[string]string{
		"database.path": "db",
		"log.level":     "log-level",
		"log.format":    "log-format",
	})

	root.AddCommand(
		serveCommand(a),
		clearCommand(a),
		importCommand(a),
		seedCommand(a),
	)
	return root
}

// mustBind binds config keys to flags. Flags only override when set.
func mustBind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

func (a *app) init() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Logging(), os.Stderr)
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("config file loaded", "path", used)
	}
	return nil
}

func (a *app) openStore() (*sqlite.Store, error) {
	store, err := sqlite.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initialize database %s: %w", a.cfg.Database.Path, err)
	}
	return store, nil
}

// =============================================================================
// SERVE
// =============================================================================

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}

	fs := cmd.Flags()
	fs.String("host", "", "listen host")
	fs.Int("port", 0, "listen port")
	fs.String("static-dir", "", "front-end build directory")
	fs.String("uploads-dir", "", "directory for stored photos")
	mustBind(a.v, fs, map[string]string{
		"server.host":       "host",
		"server.port":       "port",
		"server.static_dir": "static-dir",
		"uploads.dir":       "uploads-dir",
	})
	return cmd
}

func (a *app) serve() error {
	cfg := a.cfg
	logger := logging.Module(a.logger, "main")

	// Initialize store
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	// Initialize handler
	handler := api.NewHandler(store, api.Config{
		UploadsDir:    cfg.Uploads.Dir,
		StaticDir:     cfg.Server.StaticDir,
		CORSOrigins:   cfg.Server.CORSOrigins,
		AdminPassword: cfg.Admin.Password,
		GalleryTTL:    cfg.Gallery.CacheTTL,
	}, m, a.logger)

	// Create router
	router := api.NewRouter(handler)

	// Create server. ReadTimeout covers multi-file photo imports.
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.Database.Path, "uploads", cfg.Uploads.Dir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

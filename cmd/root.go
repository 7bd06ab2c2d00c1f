package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/sentinel-live/internal/client"
	"github.com/andresmejia3/sentinel-live/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// DB is the run journal. It stays nil when no database is configured.
	DB *store.Store
	// Logger is the structured logger handed to the internal packages
	Logger *zap.SugaredLogger

	dbURL  string
	apiURL string
	debug  bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "sentinel-live",
	Short:   "Real-time face detection and redaction over a live video feed",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		Logger = logger

		if apiURL == "" {
			apiURL = os.Getenv("SENTINEL_API")
		}
		if apiURL == "" {
			apiURL = client.DefaultBaseURL
		}

		// The journal is optional: no flag and no environment means no database
		if dbURL == "" {
			dbURL = dbURLFromEnv()
		}
		if dbURL == "" {
			Logger.Debugw("run journal disabled", "reason", "no database configured")
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// The main context might be cancelled already (Ctrl+C) and we still
			// need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
		if Logger != nil {
			_ = Logger.Sync()
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the run journal (default: from POSTGRES_* env, disabled if unset)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Base URL of the detection/effect service (default: $SENTINEL_API or "+client.DefaultBaseURL+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Verbose development logging")
}

// dbURLFromEnv builds a connection string from the POSTGRES_* variables used by docker-compose.
func dbURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, port, os.Getenv("POSTGRES_DB"))
}

// newLogger keeps library logs quiet (warnings and up, console encoded) so
// they don't fight the progress display, unless --debug is set.
func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// requireDB is used by the commands that only make sense with a journal.
func requireDB() error {
	if DB == nil {
		return fmt.Errorf("no database configured (use --db or POSTGRES_HOST)")
	}
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noot-app/nutrient-engine/internal/auth"
	"github.com/noot-app/nutrient-engine/internal/config"
	"github.com/noot-app/nutrient-engine/internal/dataset"
	"github.com/noot-app/nutrient-engine/internal/engine"
	"github.com/noot-app/nutrient-engine/internal/mcpgo"
	"github.com/noot-app/nutrient-engine/internal/store"
	"github.com/noot-app/nutrient-engine/internal/store/duckstore"
	"github.com/noot-app/nutrient-engine/internal/store/pgstore"
	"github.com/noot-app/nutrient-engine/internal/types"
	"github.com/noot-app/nutrient-engine/internal/version"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nutrient-engine",
		Short: "Nutrient aggregation and personalized requirement engine",
		Long: `Nutrient Engine tracks what users eat, keeps per-day nutrient category
totals, computes personalized daily targets from RDA tables and health
conditions, and classifies foods, dishes and drinks for each user.

The server operates in three modes:

1. STDIO Mode (--stdio): For local MCP clients
   - Uses stdio pipes for communication
   - No authentication required

2. HTTP Mode (default): For remote deployment
   - Streamable HTTP MCP endpoint at /mcp
   - Requires Bearer token authentication (except /health)

3. Fetch Data Mode (--fetch-data): Download and import the reference bundle and exit

Storage is DuckDB (DATABASE_DRIVER=duckdb, the default) or PostgreSQL
(DATABASE_DRIVER=postgres with DATABASE_URL).

Available MCP Tools:
- record_meal_entry, update_meal_entry, remove_meal_entry
- get_daily_intake, get_nutrient_summary, get_nutrient_sources
- get_food_recommendation, get_dish_recommendation, get_drink_recommendation
- repair_daily_totals, check_daily_totals`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.Flags().Bool("stdio", false, "Run in stdio mode for local MCP clients (default: HTTP mode for remote deployment)")
	rootCmd.Flags().Bool("fetch-data", false, "Fetch and import the reference bundle, then exit")

	rootCmd.AddCommand(newRepairCmd(), newCheckCmd(), newImportCmd(), newVersionCmd())
	return rootCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	stdio, _ := cmd.Flags().GetBool("stdio")
	fetchData, _ := cmd.Flags().GetBool("fetch-data")

	var logger *slog.Logger
	switch {
	case fetchData:
		logger = config.NewTextLogger(cmd.ErrOrStderr())
	default:
		logger = config.NewLogger(stdio)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := syncReference(ctx, cfg, st, logger, false); err != nil {
		return err
	}
	if fetchData {
		logger.Info("Reference data fetch completed", "bundle_path", cfg.ReferencePath)
		return nil
	}

	eng, err := newEngine(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)
	mcpSrv := mcpgo.NewServer(eng, authenticator, logger)

	if stdio {
		logger.Info("Starting Nutrient Engine in STDIO mode",
			"mode", "stdio",
			"build", version.Get(),
			"auth", "not required for stdio mode",
			"database_driver", cfg.DatabaseDriver)
		return mcpSrv.ServeStdio()
	}

	logger.Info("Starting Nutrient Engine in HTTP mode",
		"mode", "http",
		"build", version.Get(),
		"auth", "Bearer token required (except /health endpoint)",
		"database_driver", cfg.DatabaseDriver,
		"timezone", cfg.Timezone,
		"port", cfg.Port)
	return mcpSrv.ServeHTTP(ctx, ":"+cfg.Port)
}

func newRepairCmd() *cobra.Command {
	var userID int64
	var date string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Rebuild a user's daily totals from the recorded meal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, day time.Time) error {
				if err := eng.RepairDailyTotals(ctx, userID, day); err != nil {
					return err
				}
				return writeJSON(cmd, map[string]any{
					"user_id":  userID,
					"date":     types.FormatDate(dayOrToday(eng, day)),
					"repaired": true,
				})
			}, date)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User identifier (required)")
	cmd.Flags().StringVar(&date, "date", "", "Calendar day as YYYY-MM-DD (default: today in TIMEZONE)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var userID int64
	var date string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report drift between a user's daily totals and the recorded meal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, day time.Time) error {
				report, err := eng.CheckDailyTotals(ctx, userID, day)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
				if !report.Consistent {
					return fmt.Errorf("%d categories drifted", len(report.Drifts))
				}
				return nil
			}, date)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User identifier (required)")
	cmd.Flags().StringVar(&date, "date", "", "Calendar day as YYYY-MM-DD (default: today in TIMEZONE)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newImportCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the reference bundle into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := config.NewTextLogger(cmd.ErrOrStderr())
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			return syncReference(ctx, cfg, st, logger, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Import even when the bundle is unchanged")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}

// withEngine opens the configured store and engine for a batch command
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine, day time.Time) error, date string) error {
	var day time.Time
	if date != "" {
		parsed, err := types.ParseDate(date)
		if err != nil {
			return err
		}
		day = parsed
	}

	logger := config.NewTextLogger(cmd.ErrOrStderr())
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := newEngine(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	return fn(ctx, eng, day)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		st, err := pgstore.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("Failed to open postgres store", "error", err)
			return nil, err
		}
		return st, nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := duckstore.Open(ctx, cfg.DatabasePath, logger)
		if err != nil {
			logger.Error("Failed to open duckdb store", "path", cfg.DatabasePath, "error", err)
			return nil, err
		}
		return st, nil
	}
}

// syncReference downloads the reference bundle when configured and imports it
// if it changed. A missing bundle is not fatal when the store already has data.
func syncReference(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger, force bool) error {
	manager := dataset.NewManager(cfg.ReferenceURL, cfg.ReferencePath, cfg.MetadataPath, cfg.LockFile, cfg, logger)

	if err := manager.EnsureBundle(ctx); err != nil {
		if errors.Is(err, dataset.ErrNoBundle) {
			logger.Warn("No reference bundle, using reference data already in the database", "error", err)
			return nil
		}
		logger.Error("Failed to ensure reference bundle", "error", err)
		return err
	}

	_, err := manager.Import(ctx, st, force)
	return err
}

func newEngine(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) (*engine.Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return engine.New(ctx, st, engine.Options{
		MaxRetries: cfg.TxMaxRetries,
		Location:   loc,
	}, logger)
}

func dayOrToday(eng *engine.Engine, day time.Time) time.Time {
	if day.IsZero() {
		return eng.Today()
	}
	return day
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the command tree
func Execute() error {
	return NewRootCmd().Execute()
}

// Run is the main entry point for the CLI application
func Run() error {
	return Execute()
}

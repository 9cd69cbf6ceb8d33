// Package cli implements the progression command line.
// Every command opens the local database, runs one engine operation and
// prints the result; `serve` keeps the ops listener running.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/commonground/progression/internal/app/engagement"
	"github.com/commonground/progression/internal/daemon"
	"github.com/commonground/progression/internal/infra/catalog"
	"github.com/commonground/progression/internal/infra/logger"
	"github.com/commonground/progression/internal/infra/sqlite"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "progression",
	Short: "Points ledger, achievements and unlocks for a community site",
	Long: `progression runs the gamification economy of a community site:
a points ledger with an append-only transaction log, per-user achievement
progress, and cosmetic border unlocks bought with points or granted as
achievement rewards. Data lives in a local SQLite database under
$PROGRESSION_HOME (default ~/.progression).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default $PROGRESSION_HOME/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// session bundles what a command needs; close releases it.
type session struct {
	cfg    daemon.Config
	db     *sqlite.DB
	engine *engagement.Engine
	log    *zap.Logger
}

func (s *session) close() {
	s.log.Sync()
	s.db.Close()
}

func loadConfig() (daemon.Config, error) {
	path := configPath
	if path == "" {
		path = daemon.DefaultConfigPath()
	}
	return daemon.Load(path)
}

// openSession loads config, opens the store and builds the engine over the
// built-in catalog.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.OpenWithOptions(cfg.Database.Path, sqlite.Options{
		BusyTimeout:  cfg.Database.BusyTimeoutDuration(),
		MaxReadConns: cfg.Database.MaxReadConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	eng, err := engagement.New(db, catalog.Builtin(), engagement.Config{
		MaxRetries:    cfg.Engine.MaxRetries,
		StrictRewards: cfg.Engine.StrictRewards,
		HistoryLimit:  cfg.Engine.HistoryLimit,
	}, engagement.Options{Logger: log})
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := eng.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	return &session{cfg: cfg, db: db, engine: eng, log: log}, nil
}

// withEngine runs fn against a freshly opened session.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engagement.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()
	return fn(ctx, sess.engine)
}

// emit prints v as JSON when --json is set, otherwise calls text.
func emit(w io.Writer, v interface{}, text func(w io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sadopc/tabula/internal/adapter"
	"github.com/sadopc/tabula/internal/audit"
	"github.com/sadopc/tabula/internal/catalog"
	"github.com/sadopc/tabula/internal/config"
	"github.com/sadopc/tabula/internal/engine"
	"github.com/sadopc/tabula/internal/formula"
	"github.com/sadopc/tabula/internal/logging"
	"github.com/sadopc/tabula/internal/metrics"
	"github.com/sadopc/tabula/internal/render"
	"github.com/sadopc/tabula/internal/storage"

	// Register storage dialects
	_ "github.com/sadopc/tabula/internal/adapter/duckdb"
	_ "github.com/sadopc/tabula/internal/adapter/mysql"
	_ "github.com/sadopc/tabula/internal/adapter/postgres"
	_ "github.com/sadopc/tabula/internal/adapter/sqlite"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root, opts := newRootCmd()
	err := root.ExecuteContext(ctx)
	opts.close()
	if err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags and the lazily opened application.
type options struct {
	configPath string
	adapter    string
	dsn        string
	json       bool

	app *app
}

// app is everything a command needs once storage is open.
type app struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	store   *storage.Store
	journal *audit.Journal
	svc     *engine.Service
	out     *render.Renderer
}

func newRootCmd() (*cobra.Command, *options) {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tabula",
		Short: "A personal database builder with formulas",
		Long: `tabula manages user-defined collections: typed fields, relations,
nested collections, and row or summary formulas evaluated on read.

Examples:
  tabula collections create Books --field Title:Text --field Pages:Number
  tabula rows add <collection> --set Title=Dune --set Pages=412
  tabula formulas add <collection> Total "sum(rows.Pages)" --summary
  tabula --adapter postgres --dsn postgres://me@localhost/tabula rows list <collection>`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file path")
	pf.StringVarP(&opts.adapter, "adapter", "a", "", "Storage adapter (sqlite, postgres, mysql, duckdb)")
	pf.StringVar(&opts.dsn, "dsn", "", "Storage connection string")
	pf.BoolVar(&opts.json, "json", false, "Print JSON instead of tables")

	root.AddCommand(
		newCollectionsCmd(opts),
		newFieldsCmd(opts),
		newFormulasCmd(opts),
		newRowsCmd(opts),
		newCalendarCmd(opts),
		newAuditCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root, opts
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tabula %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nSupported adapters:")
			names := adapter.Names()
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  - %s\n", name)
			}
		},
	}
}

// loadConfig reads the config file and applies flag overrides.
func (o *options) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	o.override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// override applies the storage flags to cfg. A --dsn without --adapter
// selects the adapter its scheme or shape implies.
func (o *options) override(cfg *config.Config) {
	if o.adapter != "" {
		cfg.Storage.Adapter = o.adapter
	}
	if o.dsn != "" {
		cfg.Storage.DSN = o.dsn
		if o.adapter == "" {
			if name := adapter.Detect(o.dsn); name != "" {
				cfg.Storage.Adapter = name
			}
		}
	}
}

// open builds the application on first use: logger, journal, storage,
// registry migration and the engine.
func (o *options) open(cmd *cobra.Command) (*app, error) {
	if o.app != nil {
		return o.app, nil
	}
	ctx := cmd.Context()

	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	o.app = a

	if cfg.Audit.Enabled {
		path, err := cfg.AuditPath()
		if err == nil {
			a.journal, err = audit.New(path, cfg.Audit.MaxSizeMB)
		}
		if err != nil {
			log.Warnw("audit journal disabled", "error", err)
		}
	}

	dsn, err := cfg.DataSource()
	if err != nil {
		return nil, err
	}
	policy, err := storage.ParseDropPolicy(strings.ToLower(cfg.Storage.DropColumns))
	if err != nil {
		return nil, err
	}
	dialect := strings.ToLower(cfg.Storage.Adapter)
	a.store, err = storage.Open(ctx, dialect, dsn, storage.WithLogger(log), storage.WithDropPolicy(policy))
	if err != nil {
		return nil, err
	}
	log.Debugw("storage opened", "storage", cfg.Storage.DisplayString(), "dsn", audit.SanitizeDSN(dsn), "drop_columns", policy)

	cat := catalog.New(a.store, catalog.WithLogger(log), catalog.WithJournal(a.journal))
	if err := cat.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	compiler, err := formula.NewCompiler(cfg.Formula.CacheSize)
	if err != nil {
		return nil, err
	}
	a.svc = engine.New(cat,
		engine.WithLogger(log),
		engine.WithJournal(a.journal),
		engine.WithCompiler(compiler),
	)
	a.out = render.New(cmd.OutOrStdout(), render.Get(cfg.Theme), render.AsJSON(o.json))
	return a, nil
}

// close releases storage and the journal and exports metrics.
func (o *options) close() {
	a := o.app
	if a == nil {
		return
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnw("close storage", "error", err)
		}
	}
	if err := a.journal.Close(); err != nil {
		a.log.Warnw("close audit journal", "error", err)
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			a.log.Warnw("export metrics", "error", err)
		}
	}
	_ = a.log.Sync()
	o.app = nil
}

// run wraps a command body that needs the open application.
func (o *options) run(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := o.open(cmd)
		if err != nil {
			return err
		}
		return fn(cmd, a, args)
	}
}

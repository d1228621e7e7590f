package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ShayCichocki/veritas/internal/alerts"
	"github.com/ShayCichocki/veritas/internal/config"
	"github.com/ShayCichocki/veritas/internal/diag"
	"github.com/ShayCichocki/veritas/internal/engine"
	"github.com/ShayCichocki/veritas/internal/fallback"
	"github.com/ShayCichocki/veritas/internal/metrics"
	"github.com/ShayCichocki/veritas/internal/registry"
	"github.com/ShayCichocki/veritas/internal/repair"
	"github.com/ShayCichocki/veritas/internal/rules"
)

var (
	configPath   string
	templatesDir string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "Validation and recovery engine for AI-generated persona records",
	Long: `Veritas validates AI-generated persona records against versioned rule
templates and recovers from failures instead of rejecting them outright.

Records are checked by a dependency-aware rule processor; invalid output is
repaired structurally, re-checked, and if still failing handed to the
template's fallback strategy (regenerate, downgrade to a simpler tier, or
substitute a pre-validated default). Every call produces a result - the
engine never throws.

Outcomes are persisted for metrics, threshold alerting, and offline failure
analysis.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: XDG config dir, then .veritas.yaml)")
	rootCmd.PersistentFlags().StringVar(&templatesDir, "templates", "", "Template directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds one fully wired engine instance for a CLI invocation.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	registry  *registry.Registry
	loader    *registry.Loader
	flags     *config.Flags
	store     *metrics.Store
	collector *metrics.Collector
	alerts    *alerts.System
	tracer    *diag.Tracer
	diagLog   *diag.Logger
	analyzer  *diag.Analyzer
	engine    *engine.Engine
}

// buildApp loads configuration and wires every component. Callers must
// Close() it.
func buildApp() (*app, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if templatesDir != "" {
		cfg.Templates.Dir = templatesDir
	}

	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.Options{
		CacheSize: cfg.Registry.CacheSize,
		CacheTTL:  cfg.Registry.CacheTTL,
		Logger:    log,
	})

	var loader *registry.Loader
	if cfg.Templates.Dir != "" {
		loader = registry.NewLoader(reg, cfg.Templates.Dir, log)
		if err := loader.LoadDir(); err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
	}

	dbPath := cfg.Metrics.DBPath
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	store, err := metrics.OpenStore(dbPath, cfg.Metrics.MaxRecords)
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}

	collector := metrics.NewCollector(metrics.Options{
		Store:      store,
		Classifier: reg,
		Registerer: prometheus.DefaultRegisterer,
		Logger:     log,
	})

	alertSystem := alerts.New(alerts.Options{
		Metrics:          collector,
		MaxAlertsPerHour: cfg.Alerts.MaxAlertsPerHour,
		AutoResolveAfter: cfg.Alerts.AutoResolveAfter,
		Logger:           log,
	})

	tracer := diag.NewTracer(diag.TracerOptions{
		MaxTraces: cfg.Diag.MaxTraces,
		MaxAge:    cfg.Diag.MaxAge,
	})
	diagLog := diag.NewLogger(diag.LoggerOptions{
		MaxEntries: cfg.Diag.MaxLogEntries,
		MaxAge:     cfg.Diag.MaxAge,
		Mirror:     log,
	})

	flags := config.NewFlags(cfg.Flags)
	fallbackMgr := fallback.New(fallback.Options{Templates: reg, Logger: log})

	eng := engine.New(engine.Options{
		Registry: reg,
		Processor: rules.NewProcessor(rules.ProcessorOptions{
			MaxConcurrent:  cfg.Engine.MaxConcurrentRules,
			DefaultTimeout: cfg.Engine.DefaultRuleTimeout,
			Logger:         log,
		}),
		Repair:   repair.New(repair.Options{Logger: log}),
		Fallback: fallbackMgr,
		Flags:    flags,
		Metrics:  collector,
		Tracer:   tracer,
		Logger:   log,
	})

	return &app{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		loader:    loader,
		flags:     flags,
		store:     store,
		collector: collector,
		alerts:    alertSystem,
		tracer:    tracer,
		diagLog:   diagLog,
		analyzer:  diag.NewAnalyzer(tracer, diagLog, diag.AnalyzerOptions{}),
		engine:    eng,
	}, nil
}

// Close releases everything buildApp opened.
func (a *app) Close() {
	if a.loader != nil {
		a.loader.Close()
	}
	a.flags.Close()
	a.alerts.Stop()
	a.store.Close()
	a.log.Sync()
}

// newLogger builds the process logger: warnings and up by default, the full
// development output with -v.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"partialmodel/internal/config"
	"partialmodel/internal/logging"
	"partialmodel/internal/mapping"
	"partialmodel/internal/problem"
)

// app carries the state shared by all subcommands.
type app struct {
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pmodel",
		Short: "Build and query four-valued partial models",
		Long: `pmodel maps problem specifications onto a partial-model store.

Every relation of the specification and its built-in library becomes a
relation of the store, every tuple over the node universe gets a truth value
(TRUE, FALSE, UNKNOWN or ERROR), and the result can be queried with Mangle
rules over must/may views of the relations.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
			logging.Sync()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "pmodel.yaml", "Configuration file")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 5*time.Minute, "Operation timeout")

	root.AddCommand(a.buildCmd())
	root.AddCommand(a.statsCmd())
	root.AddCommand(a.queryCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	zcfg := zap.NewProductionConfig()
	if a.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	a.logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	switch {
	case a.verbose:
		logging.Use(a.logger)
	default:
		if err := logging.Initialize(cfg.Logging.ToLogging()); err != nil {
			return err
		}
	}
	logging.Boot("config loaded from %s", a.configPath)
	return nil
}

// context returns the command context bounded by --timeout.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, a.timeout)
}

// buildFile loads one specification and maps it into a fresh snapshot.
func (a *app) buildFile(ctx context.Context, path string) (*mapping.PartialModel, error) {
	resolver := a.cfg.Library()
	lib, err := resolver.BuiltinLibrary()
	if err != nil {
		return nil, err
	}
	p, err := problem.Load(path, problem.WithLibrary(lib))
	if err != nil {
		return nil, err
	}
	h, err := a.cfg.HashProvider()
	if err != nil {
		return nil, err
	}
	opts := []mapping.Option{
		mapping.WithLibrary(resolver),
		mapping.WithHashProvider(h),
	}
	if a.verbose {
		opts = append(opts, mapping.WithLogger(a.logger))
	}
	return mapping.New(opts...).Transform(ctx, p)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

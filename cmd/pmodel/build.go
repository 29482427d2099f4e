package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"partialmodel/internal/mapping"
	"partialmodel/internal/truth"
)

func (a *app) buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <spec.yaml>...",
		Short: "Map specifications into partial models",
		Long: `Loads each specification, maps it together with the built-in library,
and prints a summary of the resulting partial model. Files are built
concurrently, bounded by mapping.workers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runBuild,
	}
}

func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Mapping.Workers > 0 {
		g.SetLimit(a.cfg.Mapping.Workers)
	}
	models := make([]*mapping.PartialModel, len(args))
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			pm, err := a.buildFile(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			models[i] = pm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-32s %8s %6s %10s %10s  %s\n", "FILE", "NODES", "NEW", "RELATIONS", "WRITES", "SNAPSHOT")
	for i, pm := range models {
		s := pm.Stats
		fmt.Fprintf(out, "%-32s %8d %6d %10d %10d  %s\n", args[i], s.Nodes, s.NewNodes, s.Relations, s.Writes, pm.Snapshot.ID())
		a.logger.Debug("built", zap.String("file", args[i]), zap.Duration("duration", s.Duration))
	}
	return nil
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <spec.yaml>",
		Short: "Print per-relation truth value counts",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runStats,
	}
}

func (a *app) runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	pm, err := a.buildFile(ctx, args[0])
	if err != nil {
		return err
	}

	relations := pm.Store.Relations()
	sort.Slice(relations, func(i, j int) bool { return relations[i].Name() < relations[j].Name() })

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-24s %10s %10s %10s\n", "RELATION", "TRUE", "UNKNOWN", "ERROR")
	for _, r := range relations {
		counts := make([]uint64, 0, 3)
		for _, v := range []truth.Value{truth.True, truth.Unknown, truth.Error} {
			n, err := pm.Snapshot.Count(r, v)
			if err != nil {
				return err
			}
			counts = append(counts, n)
		}
		fmt.Fprintf(out, "%-24s %10d %10d %10d\n", r, counts[0], counts[1], counts[2])
	}
	fmt.Fprintf(out, "\nuniverse: %s\n", pm.Universe)
	return nil
}

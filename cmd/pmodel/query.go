package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"partialmodel/internal/mangle"
	"partialmodel/internal/mapping"
	"partialmodel/internal/query"
)

func (a *app) queryCmd() *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "query <spec.yaml> <atom>",
		Short: "Evaluate a Mangle query over a partial model",
		Long: `Builds the partial model and exports three views per relation as Mangle
predicates: <name> (any non-FALSE value), must_<name> (TRUE or ERROR) and
may_<name> (anything but FALSE), plus value_<name>(..., V) with V one of
/true, /unknown or /error. A name that is not a Mangle predicate symbol is
written as q__<name> with other characters hex-escaped, so Person becomes
q__Person. Optional rules are loaded before the query is evaluated. Node
identifiers are printed by name.

Example:
  pmodel query people.yaml 'must_friend(X, Y)'
  pmodel query people.yaml --rules reach.mg 'reach(X, Y)'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, args[0], args[1], rulesPath)
		},
	}
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "", "Mangle rules file (default: engine.rules_path)")
	return cmd
}

// relationViews returns the views exported for every relation of pm.
func relationViews(pm *mapping.PartialModel) []query.View {
	var views []query.View
	for _, r := range pm.Store.Relations() {
		views = append(views, query.NewKeyOnlyView(r), query.MustView(r), query.MayView(r))
	}
	return views
}

func (a *app) runQuery(cmd *cobra.Command, specPath, atom, rulesPath string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	pm, err := a.buildFile(ctx, specPath)
	if err != nil {
		return err
	}

	ec := query.NewEngineContext(pm.Snapshot, relationViews(pm)...)
	defer ec.Dispose()

	engine := mangle.NewEngine(a.cfg.MangleConfig())
	defer engine.Close()
	if err := engine.Attach(ec.RuntimeContext()); err != nil {
		return err
	}

	if rulesPath == "" {
		rulesPath = a.cfg.Engine.RulesPath
	}
	if rulesPath != "" {
		if err := engine.LoadRules(rulesPath); err != nil {
			return err
		}
	}

	res, err := engine.Query(ctx, atom)
	if err != nil {
		return err
	}
	a.logger.Debug("query evaluated",
		zap.String("query", atom),
		zap.Int("rows", len(res.Bindings)),
		zap.Duration("duration", res.Duration))

	out := cmd.OutOrStdout()
	if len(res.Bindings) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for _, row := range res.Bindings {
		fmt.Fprintln(out, formatRow(pm, row))
	}
	return nil
}

func formatRow(pm *mapping.PartialModel, row map[string]interface{}) string {
	if len(row) == 0 {
		return "true"
	}
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		value := row[name]
		if id, ok := value.(int64); ok {
			value = pm.NodeName(int(id))
		}
		parts[i] = fmt.Sprintf("%s=%v", name, value)
	}
	return strings.Join(parts, " ")
}

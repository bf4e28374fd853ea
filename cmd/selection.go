package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/brensch/tripparquet/internal/app"
	"github.com/brensch/tripparquet/internal/config"
	"github.com/brensch/tripparquet/internal/orchestrator"
	"github.com/brensch/tripparquet/internal/shard"
)

// selectShards loads the selection document, validates it together with the
// overrides and expands it. Every violation is reported, not just the first.
func selectShards(path string, o shard.Overrides, logger *slog.Logger) ([]shard.Key, error) {
	sel, err := config.LoadSelection(path)
	if err != nil {
		return nil, err
	}
	groups := sel.Groups()

	var violations []string
	for _, verr := range []error{shard.Validate(groups), shard.ValidateOverrides(o)} {
		var ve *shard.ValidationError
		if errors.As(verr, &ve) {
			violations = append(violations, ve.Violations...)
		}
	}
	if len(violations) > 0 {
		for _, v := range violations {
			logger.Error("Configuration violation.", "violation", v)
		}
		return nil, &shard.ValidationError{Violations: violations}
	}

	keys := shard.Expand(groups, o)
	if len(keys) == 0 {
		return nil, orchestrator.ErrEmptySelection
	}
	logger.Info("Selection expanded.", slog.Int("datasets", len(groups)), slog.Int("shards", len(keys)),
		slog.String("category_override", o.Category), slog.Int("year_override", o.Year), slog.Int("month_override", o.Month))
	return keys, nil
}

// printPlan writes the dry-run view: one line per shard and the totals.
func printPlan(w io.Writer, layout shard.Layout, keys []shard.Key, force bool) {
	missing, present := layout.Partition(keys)
	isPresent := make(map[shard.Key]bool, len(present))
	for _, k := range present {
		isPresent[k] = true
	}

	fmt.Fprintln(w, app.Title(fmt.Sprintf("--- Dry run: %d shards ---", len(keys))))
	for _, k := range keys {
		label := app.PlanNew
		if isPresent[k] {
			label = app.PlanSkip
			if force {
				label = app.PlanForce
			}
		}
		fmt.Fprintf(w, "  %s %s -> %s\n", app.StatusWidth(label, 6), layout.RemoteURL(k), layout.OutputPath(k))
	}
	if force {
		fmt.Fprintf(w, "Would fetch %d shards (%d new, %d forced).\n", len(keys), len(missing), len(present))
		return
	}
	fmt.Fprintf(w, "Would fetch %d shards, skip %d already present.\n", len(missing), len(present))
}

// categoriesOf lists the distinct categories of keys in first-seen order.
func categoriesOf(keys []shard.Key) []string {
	seen := map[string]bool{}
	var cats []string
	for _, k := range keys {
		if !seen[k.Category] {
			seen[k.Category] = true
			cats = append(cats, k.Category)
		}
	}
	return cats
}

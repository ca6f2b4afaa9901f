package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/siteselect-cli/internal/rollup"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Rebuild county aggregates from a run's survivors",
}

var rollupRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Delete and recompute the county aggregates for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrateAll(ctx, pool); err != nil {
			return err
		}

		ceiling := cfg.Rollup.MaxMeanDensity
		if cmd.Flags().Changed("max-mean-density") {
			ceiling, _ = cmd.Flags().GetFloat64("max-mean-density")
		}

		store := rollup.NewStore(pool)
		result, err := store.Rebuild(ctx, args[0], ceiling)
		if err != nil {
			return eris.Wrap(err, "rollup run")
		}

		p := message.NewPrinter(language.English)
		p.Printf("Rebuilt %d county aggregates: %d passed, %d failed\n",
			result.Counties, result.Passed, result.Failed)
		return nil
	},
}

var rollupShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "List a run's county aggregates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		all, _ := cmd.Flags().GetBool("all")
		store := rollup.NewStore(pool)

		var aggs []rollup.Aggregate
		if all {
			aggs, err = store.ListAll(ctx, args[0])
		} else {
			aggs, err = store.ListLive(ctx, args[0])
		}
		if err != nil {
			return eris.Wrap(err, "rollup show")
		}

		if len(aggs) == 0 {
			fmt.Fprintln(os.Stderr, "No aggregates found. Run `siteselect rollup run` first.")
			return nil
		}

		p := message.NewPrinter(language.English)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "COUNTY\tZIPS\tPOPULATION\tMEAN_DENSITY\tPASSED\tREASON")
		for _, a := range aggs {
			_, _ = p.Fprintf(w, "%s\t%d\t%.0f\t%.1f\t%t\t%s\n",
				a.CountyFIPS, a.ZIPCount, a.TotalPopulation, a.MeanDensity, a.Passed, a.FailReason)
		}
		return w.Flush()
	},
}

func init() {
	rollupRunCmd.Flags().Float64("max-mean-density", 0, "override the mean-density ceiling (default from config)")
	rollupShowCmd.Flags().Bool("all", false, "include failed aggregates")

	rollupCmd.AddCommand(rollupRunCmd)
	rollupCmd.AddCommand(rollupShowCmd)
	rootCmd.AddCommand(rollupCmd)
}

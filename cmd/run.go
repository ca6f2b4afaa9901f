package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/siteselect-cli/internal/config"
	"github.com/sells-group/siteselect-cli/internal/facts"
	"github.com/sells-group/siteselect-cli/internal/screen"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage screening runs",
	Long:  "Commands for starting, completing, and inspecting screening runs.",
}

// -- run start --

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a screening run over the filtered candidate universe",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrateAll(ctx, pool); err != nil {
			return err
		}

		states, _ := cmd.Flags().GetStringSlice("states")
		minPop, _ := cmd.Flags().GetFloat64("min-population")

		criteria := screen.FilterCriteria{States: states, MinPopulation: minPop}
		registry := screen.NewRegistry(screen.NewPostgresStore(pool), facts.NewCatalogProvider(pool))

		run, err := registry.StartRun(ctx, criteria, thresholdsFromConfig(cfg.Screen))
		if err != nil {
			return eris.Wrap(err, "run start")
		}

		p := message.NewPrinter(language.English)
		p.Printf("Started run %s with %d candidates\n", run.ID, run.TotalZIPs)
		return nil
	},
}

// -- run complete --

var runCompleteCmd = &cobra.Command{
	Use:   "complete <run-id>",
	Short: "Finalize a run and record its surviving count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := screen.NewPostgresStore(pool)
		registry := screen.NewRegistry(store, facts.NewCatalogProvider(pool))
		if err := registry.CompleteRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "run complete")
		}

		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "run complete")
		}

		p := message.NewPrinter(language.English)
		p.Printf("Run %s complete: %d of %d candidates surviving\n",
			run.ID, run.SurvivingZIPs, run.TotalZIPs)
		return nil
	},
}

// -- run status --

var runStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run's stage history and candidate accounting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := screen.NewPostgresStore(pool)
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "run status")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		logs, err := store.ListStageLogs(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "run status")
		}
		histogram, err := store.StageHistogram(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "run status")
		}

		formatRunStatus(os.Stdout, run, logs, histogram)
		return nil
	},
}

// -- run list --

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List screening runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrateAll(ctx, pool); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := screen.NewPostgresStore(pool).ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "run list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runStartCmd.Flags().StringSlice("states", nil, "restrict the universe to these state codes")
	runStartCmd.Flags().Float64("min-population", 0, "restrict the universe to ZIPs at or above this population")

	runStatusCmd.Flags().Bool("json", false, "emit the run row as JSON")
	runListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runCompleteCmd)
	runCmd.AddCommand(runStatusCmd)
	runCmd.AddCommand(runListCmd)
	rootCmd.AddCommand(runCmd)
}

// thresholdsFromConfig snapshots the configured stage limits into a run's
// immutable parameter set.
func thresholdsFromConfig(c config.ScreenConfig) screen.Thresholds {
	return screen.Thresholds{
		MinPopulation:     c.MinPopulation,
		MaxDensity:        c.MaxDensity,
		MinDensity:        c.MinDensity,
		MinMedianIncome:   c.MinMedianIncome,
		MaxPovertyRate:    c.MaxPovertyRate,
		MaxRenterShare:    c.MaxRenterShare,
		MaxFacilities:     c.MaxFacilities,
		MaxSqftPerCapita:  c.MaxSqftPerCapita,
		MinProjectedYield: c.MinProjectedYield,
		MaxBreakevenOcc:   c.MaxBreakevenOcc,
		MaxLandPricePerAc: c.MaxLandPricePerAc,
	}
}

// formatRunList writes a tabular list of runs to w.
func formatRunList(out io.Writer, runs []screen.Run) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTAGE\tTOTAL\tSURVIVING\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-----\t-----\t---------\t-------")

	for _, r := range runs {
		_, _ = p.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.Status,
			r.CurrentStage,
			r.TotalZIPs,
			r.SurvivingZIPs,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStatus writes a run summary with its stage log to w.
func formatRunStatus(out io.Writer, run *screen.Run, logs []screen.StageLogEntry, histogram map[int]int) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Current stage:\t%d\n", run.CurrentStage)
	_, _ = p.Fprintf(w, "Candidates:\t%d\n", run.TotalZIPs)
	if run.Status == screen.StatusComplete {
		_, _ = p.Fprintf(w, "Surviving:\t%d\n", run.SurvivingZIPs)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	_ = w.Flush()

	if len(logs) > 0 {
		fmt.Fprintln(out)
		lw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(lw, "STAGE\tINPUT\tKILLED\tOUTPUT\tCOMPLETED")
		for _, l := range logs {
			completed := ""
			if l.CompletedAt != nil {
				completed = l.CompletedAt.Format(time.RFC3339)
			}
			_, _ = p.Fprintf(lw, "%d\t%d\t%d\t%d\t%s\n",
				l.Stage, l.InputCount, l.KilledCount, l.OutputCount, completed)
		}
		_ = lw.Flush()
	}

	if len(histogram) > 0 {
		fmt.Fprintln(out)
		hw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(hw, "STAGE_REACHED\tCANDIDATES")
		maxStage := -1
		for s := range histogram {
			if s > maxStage {
				maxStage = s
			}
		}
		for s := -1; s <= maxStage; s++ {
			if n, ok := histogram[s]; ok {
				_, _ = p.Fprintf(hw, "%d\t%d\n", s, n)
			}
		}
		_ = hw.Flush()
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

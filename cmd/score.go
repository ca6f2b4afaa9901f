package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/siteselect-cli/internal/facts"
	"github.com/sells-group/siteselect-cli/internal/rollup"
	"github.com/sells-group/siteselect-cli/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score county aggregates under weight profiles",
}

// -- score all --

var scoreAllCmd = &cobra.Command{
	Use:   "all <run-id>",
	Short: "Recompute all score records for a profile",
	Long: "Deletes the profile's existing score records and rescores every live " +
		"county aggregate of the run, assigning dense ranks over the non-fatal set.",
	Args: cobra.ExactArgs(1),
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

		profileID, _ := cmd.Flags().GetString("profile")

		store := scoring.NewStore(pool)
		engine := scoring.NewEngine(store, rollup.NewStore(pool), facts.NewCatalogProvider(pool), store)

		result, err := engine.ScoreAll(ctx, args[0], profileID)
		if err != nil {
			return eris.Wrap(err, "score all")
		}

		fmt.Printf("Scored %d counties under profile %s: %d ranked, %d fatal\n",
			result.Counties, result.ProfileID, result.Ranked, result.Fatal)
		return nil
	},
}

// -- score show --

var scoreShowCmd = &cobra.Command{
	Use:   "show <profile-id>",
	Short: "Show the ranked score records for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		records, err := scoring.NewStore(pool).ListScores(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "score show")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No score records found. Run `siteselect score all` first.")
			return nil
		}

		formatScores(os.Stdout, records)
		return nil
	},
}

// -- score profiles --

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage weight profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved weight profiles",
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

		profiles, err := scoring.NewStore(pool).ListProfiles(ctx)
		if err != nil {
			return eris.Wrap(err, "profiles list")
		}
		if len(profiles) == 0 {
			fmt.Fprintln(os.Stderr, "No profiles saved. Load one with `siteselect score profiles load`.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tVERSION\tACTIVE\tCREATED")
		for _, p := range profiles {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
				truncateID(p.ID), p.Name, p.Version, p.Active,
				p.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var profilesLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Validate and save a weight profile from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open profile file %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		profile, err := scoring.ParseProfileYAML(f)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrateAll(ctx, pool); err != nil {
			return err
		}

		store := scoring.NewStore(pool)
		if err := store.SaveProfile(ctx, profile); err != nil {
			return err
		}

		if activate, _ := cmd.Flags().GetBool("activate"); activate {
			if err := store.SetActive(ctx, profile.ID); err != nil {
				return err
			}
		}

		fmt.Printf("Saved profile %s (%s v%d)\n", profile.ID, profile.Name, profile.Version)
		return nil
	},
}

var profilesActivateCmd = &cobra.Command{
	Use:   "activate <profile-id>",
	Short: "Mark a profile as the active scoring configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := scoring.NewStore(pool).SetActive(ctx, args[0]); err != nil {
			return eris.Wrap(err, "profiles activate")
		}

		fmt.Printf("Profile %s is now active\n", args[0])
		return nil
	},
}

var profilesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Save and activate the baseline profile",
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

		store := scoring.NewStore(pool)
		profile := scoring.DefaultProfile()
		if err := store.SaveProfile(ctx, &profile); err != nil {
			return err
		}
		if err := store.SetActive(ctx, profile.ID); err != nil {
			return err
		}

		fmt.Printf("Saved and activated baseline profile %s\n", profile.ID)
		return nil
	},
}

func init() {
	scoreAllCmd.Flags().String("profile", "", "profile ID to score under (default: active profile)")
	profilesLoadCmd.Flags().Bool("activate", false, "activate the profile after saving")

	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesLoadCmd)
	profilesCmd.AddCommand(profilesActivateCmd)
	profilesCmd.AddCommand(profilesInitCmd)

	scoreCmd.AddCommand(scoreAllCmd)
	scoreCmd.AddCommand(scoreShowCmd)
	scoreCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(scoreCmd)
}

// formatScores writes a ranked score table to w.
func formatScores(out io.Writer, records []scoring.ScoreRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tCOUNTY\tCOMPOSITE\tTIER\tRECOMMENDATION\tFATAL")
	for _, r := range records {
		rank := "-"
		if r.Rank != nil {
			rank = fmt.Sprintf("%d", *r.Rank)
		}
		fatal := ""
		if r.HasFatalFlaw {
			fatal = fmt.Sprintf("%d flaw(s)", len(r.FatalFlaws))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\t%s\n",
			rank, r.CountyFIPS, r.Composite, r.Tier, r.Recommendation, fatal)
	}
	_ = w.Flush()
}

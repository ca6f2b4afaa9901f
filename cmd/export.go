package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect-cli/internal/scoring"
)

var exportCmd = &cobra.Command{
	Use:   "export <profile-id>",
	Short: "Export a profile's score records to an xlsx workbook",
	Long: "Writes two sheets: Rankings with the composite, tier, and recommendation " +
		"per county, and Components with the full sub-score breakdown.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		records, err := scoring.NewStore(pool).ListScores(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if len(records) == 0 {
			return eris.Errorf("no score records for profile %s", args[0])
		}

		out, _ := cmd.Flags().GetString("out")
		if err := writeScoreWorkbook(records, out); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("profile", args[0]),
			zap.Int("counties", len(records)),
			zap.String("path", out),
		)
		fmt.Printf("Wrote %d counties to %s\n", len(records), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "scores.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}

// componentOrder fixes the column layout of the Components sheet.
var componentOrder = []string{"financial", "market", "growth", "catalyst", "regulatory"}

// subScoreOrder fixes the column layout of the sub-score columns.
var subScoreOrder = []string{
	"yield", "cushion", "breakeven",
	"saturation", "rent", "demand",
	"population_growth", "income_growth", "permit_growth",
	"catalyst", "regulatory",
}

func writeScoreWorkbook(records []scoring.ScoreRecord, path string) error {
	file := xlsx.NewFile()

	rankings, err := file.AddSheet("Rankings")
	if err != nil {
		return eris.Wrap(err, "export: add rankings sheet")
	}
	header := rankings.AddRow()
	for _, h := range []string{"Rank", "County FIPS", "Composite", "Tier", "Recommendation", "Fatal Flaws", "Data Age (days)"} {
		header.AddCell().Value = h
	}
	for _, r := range records {
		row := rankings.AddRow()
		if r.Rank != nil {
			row.AddCell().SetInt(*r.Rank)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().Value = r.CountyFIPS
		row.AddCell().SetFloatWithFormat(r.Composite, "0.0")
		row.AddCell().Value = r.Tier
		row.AddCell().Value = r.Recommendation
		row.AddCell().Value = strings.Join(r.FatalFlaws, "; ")
		row.AddCell().SetInt(r.DataFreshnessDays)
	}

	components, err := file.AddSheet("Components")
	if err != nil {
		return eris.Wrap(err, "export: add components sheet")
	}
	ch := components.AddRow()
	ch.AddCell().Value = "County FIPS"
	for _, name := range componentOrder {
		ch.AddCell().Value = name
	}
	for _, name := range subScoreOrder {
		ch.AddCell().Value = "sub:" + name
	}
	for _, r := range records {
		row := components.AddRow()
		row.AddCell().Value = r.CountyFIPS
		for _, name := range componentOrder {
			row.AddCell().SetFloatWithFormat(r.ComponentScores[name], "0.0")
		}
		for _, name := range subScoreOrder {
			row.AddCell().SetFloatWithFormat(r.SubScores[name], "0.0")
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}

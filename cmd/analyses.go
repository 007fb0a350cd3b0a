package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/internal/store"
)

var (
	analysesStatus string
	analysesLimit  int
	purgeOlderThan int
)

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Inspect and maintain the analysis cache",
}

var analysesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.AnalysisFilter{Limit: analysesLimit}
		if analysesStatus != "" {
			status, ok := model.ParseStatus(analysesStatus)
			if !ok {
				return eris.Errorf("unknown status %q", analysesStatus)
			}
			filter.Status = status
		}

		analyses, err := st.ListAnalyses(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list analyses")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analyses)
	},
}

var analysesPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete analyses older than the staleness window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		days := purgeOlderThan
		if days == 0 {
			days = cfg.Cache.RefreshDays
		}
		cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

		n, err := st.DeleteStale(ctx, cutoff)
		if err != nil {
			return eris.Wrap(err, "purge analyses")
		}

		zap.L().Info("purged stale analyses",
			zap.Int("deleted", n),
			zap.Time("cutoff", cutoff),
		)
		return nil
	},
}

var analysesImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Bulk-import curated analyses from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read import file")
		}

		var analyses []model.IngredientAnalysis
		if err := json.Unmarshal(data, &analyses); err != nil {
			return eris.Wrap(err, "parse import file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.ImportAnalyses(ctx, analyses)
		if err != nil {
			return eris.Wrap(err, "import analyses")
		}

		zap.L().Info("import complete",
			zap.Int64("imported", n),
			zap.String("file", args[0]),
		)
		return nil
	},
}

func init() {
	analysesListCmd.Flags().StringVar(&analysesStatus, "status", "", "filter by status (safe, caution, banned)")
	analysesListCmd.Flags().IntVar(&analysesLimit, "limit", 0, "maximum rows (default 100)")
	analysesPurgeCmd.Flags().IntVar(&purgeOlderThan, "older-than", 0, "staleness cutoff in days (default from config)")

	analysesCmd.AddCommand(analysesListCmd, analysesPurgeCmd, analysesImportCmd)
	rootCmd.AddCommand(analysesCmd)
}

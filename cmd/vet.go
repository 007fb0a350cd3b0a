package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/model"
)

var vetFile string

var vetCmd = &cobra.Command{
	Use:   "vet [ingredients...]",
	Short: "Vet an ingredient list",
	Long:  "Vets ingredients given as arguments, as a single comma-separated list, or from a file via --file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		names, err := vetInput(args, vetFile)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return eris.New("no ingredients given")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Pipeline.VetBatch(ctx, names)

		zap.L().Info("vet complete",
			zap.Int("ingredients", len(result.Ingredients)),
			zap.String("overall_status", string(result.OverallStatus)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// vetInput resolves the ingredient names from args or a file. A single
// argument containing commas is treated as a full ingredient list.
func vetInput(args []string, file string) ([]string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrap(err, "read ingredient file")
		}
		return model.SplitIngredientList(string(data)), nil
	}
	if len(args) == 1 && strings.Contains(args[0], ",") {
		return model.SplitIngredientList(args[0]), nil
	}
	return args, nil
}

func init() {
	vetCmd.Flags().StringVar(&vetFile, "file", "", "file containing a comma-separated ingredient list")
	rootCmd.AddCommand(vetCmd)
}

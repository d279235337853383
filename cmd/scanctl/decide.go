package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/wastesort/internal/category"
	"github.com/example/wastesort/internal/ensemble"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Reconcile a human label and two model predictions",
	Long: `Runs the ensemble decision for one scan without touching the service.

Predictions are given as label:confidence, for example --model-a glass:0.91.
Leaving a flag empty marks that input as missing.`,
	Args: cobra.NoArgs,
	RunE: runDecide,
}

func init() {
	decideCmd.Flags().String("human", "", "label chosen by the user")
	decideCmd.Flags().String("model-a", "", "model A prediction as label:confidence")
	decideCmd.Flags().String("model-b", "", "model B prediction as label:confidence")
	decideCmd.Flags().Bool("raw", false, "skip category normalisation")
}

func runDecide(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetBool("raw")
	humanFlag, _ := cmd.Flags().GetString("human")
	aFlag, _ := cmd.Flags().GetString("model-a")
	bFlag, _ := cmd.Flags().GetString("model-b")

	var human *ensemble.Classification
	if humanFlag != "" {
		human = &ensemble.Classification{Label: normalize(humanFlag, raw)}
	}
	modelA, err := parsePrediction(aFlag, raw)
	if err != nil {
		return fmt.Errorf("--model-a: %w", err)
	}
	modelB, err := parsePrediction(bFlag, raw)
	if err != nil {
		return fmt.Errorf("--model-b: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ensemble.Decide(human, modelA, modelB))
}

// parsePrediction reads "label:confidence". An empty value is a missing
// prediction.
func parsePrediction(value string, raw bool) (*ensemble.Classification, error) {
	if value == "" {
		return nil, nil
	}
	idx := strings.LastIndex(value, ":")
	if idx <= 0 || idx == len(value)-1 {
		return nil, fmt.Errorf("expected label:confidence, got %q", value)
	}
	confidence, err := strconv.ParseFloat(value[idx+1:], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid confidence %q: %w", value[idx+1:], err)
	}
	if !(confidence >= 0 && confidence <= 1) {
		return nil, fmt.Errorf("confidence %v outside [0,1]", confidence)
	}
	return &ensemble.Classification{Label: normalize(value[:idx], raw), Confidence: confidence}, nil
}

func normalize(label string, raw bool) string {
	if raw {
		return label
	}
	normalized, _ := category.Normalize(label)
	return normalized
}

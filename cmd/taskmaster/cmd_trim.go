package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"taskmaster/internal/trim"
)

var trimFlags struct {
	maxUnits int
	input    string
}

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Trim a context package JSON to a token budget",
	Long: `Reads a context package as JSON (stdin or --input), applies the staged
token-budget trimmer, and prints the trimmed package. The trim report goes to
stderr so the output stays pipeable.`,
	RunE: runTrim,
}

func init() {
	f := trimCmd.Flags()
	f.IntVar(&trimFlags.maxUnits, "max-units", 0, "token budget (default from config)")
	f.StringVar(&trimFlags.input, "input", "", "package JSON file (default stdin)")
}

func runTrim(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if trimFlags.input != "" {
		f, err := os.Open(trimFlags.input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var pkg trim.Package
	if err := json.NewDecoder(r).Decode(&pkg); err != nil {
		return fmt.Errorf("decode package: %w", err)
	}

	budget := trimFlags.maxUnits
	if budget <= 0 {
		budget = cfg.Trim.MaxUnits
	}

	trimmed, report := trim.ToBudget(pkg, budget)

	out, err := json.MarshalIndent(trimmed, "", "  ")
	if err != nil {
		return fmt.Errorf("encode package: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	fmt.Fprintf(cmd.ErrOrStderr(), "trim: records=%d images=%d changes=%d truncated=%d overBudget=%v units=%d\n",
		report.RecordsRemoved, report.ImagesRemoved, report.ChangesRemoved,
		report.FieldsTruncated, report.OverBudget, trim.Units(trim.Estimator{}, trimmed))
	return nil
}

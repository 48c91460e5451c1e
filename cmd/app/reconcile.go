package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"telegram-access-subscription/internal/domain/model"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciler pass and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := buildApplication(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.worker.RunOnce(ctx)
		return writeReport(cmd.OutOrStdout(), report, err)
	},
}

// writeReport prints the pass report and returns the pass error joined with
// any failure to print it.
func writeReport(w io.Writer, report model.PassReport, passErr error) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return errors.Join(passErr, fmt.Errorf("write report: %w", err))
	}
	return passErr
}

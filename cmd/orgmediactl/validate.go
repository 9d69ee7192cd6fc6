package main

import (
	"fmt"

	"orgmedia/internal/model"
	"orgmedia/internal/upload"

	"github.com/spf13/cobra"
)

type validateReport struct {
	model.ValidationResult
	Files               int   `json:"files"`
	TotalBytes          int64 `json:"totalBytes"`
	RecommendSequential bool  `json:"recommendSequential"`
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check files against the upload policy without sending them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := upload.LoadCandidates(args)
			if err != nil {
				return err
			}
			policy, err := a.cfg.Upload.Policy()
			if err != nil {
				return err
			}

			report := validateReport{
				ValidationResult:    policy.Validate(candidates),
				Files:               len(candidates),
				RecommendSequential: policy.RecommendSequential(candidates),
			}
			for _, c := range candidates {
				report.TotalBytes += c.Size
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("%d problem(s) found", len(report.Errors))
			}
			return nil
		},
	}
}

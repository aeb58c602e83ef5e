package main

import (
	"fmt"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newEnqueueCmd(opts *rootOptions) *cobra.Command {
	var (
		file   string
		userID string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Upload a workflow's inputs and queue it for the workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			req, err := runs.LoadWorkflowFile(file)
			if err != nil {
				return err
			}
			ctx := utils.WithCaller(cmd.Context(), &models.Caller{UserID: uid, Role: models.UserRole})
			b, err := opts.openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			if err := b.runsUC.UploadInputs(ctx, req); err != nil {
				return err
			}
			run, err := b.runsUC.Create(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", run.RunID, run.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow file (YAML)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "owner of the run")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a queued or finished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := utils.WithCaller(cmd.Context(), &models.Caller{Role: models.AdminRole})
			b, err := opts.openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			run, err := b.runsUC.GetByID(ctx, runID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:      %s\nworkflow: %s\nstatus:   %s\nprogress: %.0f%%\n", run.RunID, run.Workflow, run.Status, run.Progress)
			if run.CurrentStage != "" {
				fmt.Fprintf(out, "stage:    %s\n", run.CurrentStage)
			}
			if run.ErrorMessage != "" {
				fmt.Fprintf(out, "error:    %s\n", run.ErrorMessage)
			}
			for _, a := range run.Artifacts {
				fmt.Fprintf(out, "artifact: %s %s\n", a.Stage, a.DownloadURL)
			}
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		email  string
		admin  bool
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the runs API",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			caller := &models.Caller{UserID: uid, Email: email, Role: models.UserRole}
			if admin {
				caller.Role = models.AdminRole
			}
			token, err := utils.GenerateJWTToken(caller, cfg.Server.JwtSecretKey, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id carried in the token")
	cmd.Flags().StringVar(&email, "email", "", "email carried in the token")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/amankumarsingh77/studio-orchestrator/internal/server"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	studioRepository "github.com/amankumarsingh77/studio-orchestrator/internal/studio/repository"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		file        string
		downloadDir string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow file against the studio server and wait for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			req, err := runs.LoadWorkflowFile(file)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := opts.logger(cfg)
			client := studioRepository.NewStudioClient(cfg, log)
			workflows, runner := server.NewStudioPipeline(client, cfg.Studio, log)

			stages, err := workflows.Build(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			results, err := runner.Run(ctx, stages, func(p models.StageProgress) {
				fmt.Fprintf(out, "[%3.0f%%] %d/%d %-18s %-9s %s\n", p.Overall(), p.Index+1, p.Total, p.Name, p.Phase, p.Message)
			})
			printResults(out, results)
			if err != nil {
				return err
			}
			if downloadDir != "" {
				return downloadResults(ctx, out, client, results, downloadDir)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow file (YAML)")
	cmd.Flags().StringVarP(&downloadDir, "download", "d", "", "save produced files into this directory")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printResults(w io.Writer, results []models.StageResult) {
	for _, r := range results {
		if r.Result == nil || r.Result.Filename == "" {
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", r.Name, r.Result.Filename)
	}
}

func downloadResults(ctx context.Context, w io.Writer, client studio.Client, results []models.StageResult, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, r := range results {
		if r.Kind == models.JobKindUpload || r.Result == nil || r.Result.Filename == "" {
			continue
		}
		dst := filepath.Join(dir, filepath.Base(r.Result.Filename))
		if err := downloadOne(ctx, client, r.Result.Filename, dst); err != nil {
			return err
		}
		fmt.Fprintf(w, "saved %s\n", dst)
	}
	return nil
}

func downloadOne(ctx context.Context, client studio.Client, filename, dst string) error {
	dl, err := client.Download(ctx, filename, nil)
	if err != nil {
		return err
	}
	defer dl.Body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, dl.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", filename, err)
	}
	return f.Close()
}

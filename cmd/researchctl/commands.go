package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/BerylCAtieno/research-paper-api/internal/app"
	"github.com/BerylCAtieno/research-paper-api/internal/config"
	"github.com/BerylCAtieno/research-paper-api/internal/models"
	"github.com/BerylCAtieno/research-paper-api/internal/repository"
	"github.com/BerylCAtieno/research-paper-api/internal/services"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "researchctl",
		Short:         "Operate the research paper service",
		Long:          `Apply migrations, inspect documents and recover stalled processing in the record store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newSweepCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply record store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecordStore(func(_ repository.Repository, cfg *config.Config, _ *utils.Logger) error {
				cmd.Printf("Migrations applied to %s\n", cfg.DatabaseURL)
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents with their processing status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecordStore(func(repo repository.Repository, _ *config.Config, _ *utils.Logger) error {
				docs, err := repo.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list documents: %w", err)
				}
				if status != "" {
					docs = filterByStatus(docs, models.Status(status))
				}
				renderDocuments(cmd.OutOrStdout(), docs)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Only show documents in this status (PENDING, PROCESSING, COMPLETED, FAILED)")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark stalled PROCESSING documents as FAILED",
		Long: `Marks documents that have been PROCESSING for longer than --older-than as FAILED,
so they stop blocking reads. Run it when no server is processing them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecordStore(func(repo repository.Repository, cfg *config.Config, logger *utils.Logger) error {
				if olderThan <= 0 {
					olderThan = cfg.StaleProcessingAfter
				}
				sweeper := services.NewSweeper(repo, nil, olderThan, logger)
				n, err := sweeper.FailStalled(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				cmd.Printf("Marked %d stalled document(s) as FAILED\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Staleness threshold (defaults to STALE_PROCESSING_AFTER)")
	return cmd
}

func withRecordStore(fn func(repository.Repository, *config.Config, *utils.Logger) error) error {
	cfg, err := config.LoadRecordStore()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := utils.NewLogger(cfg.LogLevel)

	database, repo, err := app.OpenRecordStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	return fn(repo, cfg, logger)
}

func filterByStatus(docs []*models.Document, status models.Status) []*models.Document {
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

var statusColors = map[models.Status]*color.Color{
	models.StatusPending:    color.New(color.FgYellow),
	models.StatusProcessing: color.New(color.FgCyan),
	models.StatusCompleted:  color.New(color.FgGreen),
	models.StatusFailed:     color.New(color.FgRed, color.Bold),
}

func colorStatus(s models.Status) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(s)
	}
	return string(s)
}

func renderDocuments(w io.Writer, docs []*models.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tUPLOADED\tTITLE\tERROR")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.ID,
			colorStatus(d.Status),
			d.UploadDate.Format(time.DateTime),
			d.Title,
			d.Error)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal: %d documents\n", len(docs))
}

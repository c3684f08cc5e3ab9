package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	gradspeech "github.com/goliatone/go-gradspeech"
	gocommandadapter "github.com/goliatone/go-gradspeech/adapters/gocommand"
	"github.com/goliatone/go-gradspeech/core"
	"github.com/spf13/cobra"
)

// completionRow is the printed form of a record. Form data is included so
// operators can re-run generation by hand.
type completionRow struct {
	ID            string         `json:"id"`
	PreviewID     string         `json:"preview_id"`
	SessionID     string         `json:"stripe_session_id"`
	CustomerEmail string         `json:"customer_email,omitempty"`
	FormData      map[string]any `json:"form_data,omitempty"`
	Processed     bool           `json:"processed"`
	CreatedAt     string         `json:"created_at"`
	ProcessedAt   string         `json:"processed_at,omitempty"`
}

func newCompletionRow(record core.CompletionRecord) completionRow {
	row := completionRow{
		ID:            record.ID,
		PreviewID:     record.PreviewID,
		SessionID:     record.SessionID,
		CustomerEmail: record.CustomerEmail,
		FormData:      record.FormData,
		Processed:     record.Processed,
		CreatedAt:     record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if record.ProcessedAt != nil {
		row.ProcessedAt = record.ProcessedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return row
}

// withRecordStore opens the configured store, composes the app with the
// command bus registered and runs fn.
func withRecordStore(ctx context.Context, root *rootOptions, logOut io.Writer, fn func(ctx context.Context) error) error {
	cfg, err := root.loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := openDatabase(cfg.Store)
	if err != nil {
		return err
	}
	defer client.Close()

	app, err := gradspeech.Setup(ctx, cfg,
		gradspeech.WithLoggerProvider(root.newLogger(logOut)),
		gradspeech.WithDB(client.DB()),
	)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer app.Close()
	return fn(ctx)
}

func newPendingCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List completions not yet processed by the speech generator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRecordStore(cmd.Context(), root, cmd.ErrOrStderr(), func(ctx context.Context) error {
				records, err := gocommandadapter.ListPending(ctx, limit)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to list")
	return cmd
}

func newMarkProcessedCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-processed <record-id>",
		Short: "Flag a completion as consumed by the speech generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecordStore(cmd.Context(), root, cmd.ErrOrStderr(), func(ctx context.Context) error {
				record, err := gocommandadapter.MarkProcessed(ctx, args[0])
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), []core.CompletionRecord{record})
			})
		},
	}
}

func printRecords(w io.Writer, records []core.CompletionRecord) error {
	encoder := json.NewEncoder(w)
	for _, record := range records {
		if err := encoder.Encode(newCompletionRow(record)); err != nil {
			return err
		}
	}
	return nil
}

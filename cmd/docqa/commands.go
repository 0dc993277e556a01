package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/httpapi"
	"docqa/internal/service"
	"docqa/internal/tui"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, a, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srvCfg := httpapi.Config{
				Addr:            a.cfg.Server.Addr(),
				MaxUploadBytes:  int64(a.cfg.Server.MaxUploadMB) << 20,
				ShutdownTimeout: config.Timeout(a.cfg.Server.ShutdownTimeoutSecs),
				CORSEnabled:     true,
			}
			router := httpapi.NewRouter(a.svc, a.registry, a.log, srvCfg)
			return httpapi.NewServer(srvCfg, router, a.log).Run(ctx)
		},
	}
}

func ingestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Index PDF, DOCX and TXT files (globs allowed)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.svc.IngestFiles(ctx, args)
			for _, r := range results {
				printIngest(cmd, r)
			}
			return err
		},
	}
}

func printIngest(cmd *cobra.Command, r service.IngestResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d pages, %d chunks\n", r.DocumentName, r.PagesProcessed, r.ChunksCreated)
	if r.Summary != "" {
		fmt.Fprintf(out, "  %s\n", r.Summary)
	}
}

func askCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [FILE...]",
		Short: "Optionally index files, then ask questions interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var summaries []string
			if len(args) > 0 {
				results, err := a.svc.IngestFiles(ctx, args)
				if err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
				for _, r := range results {
					if r.Summary != "" {
						summaries = append(summaries, r.Summary)
					}
				}
			}
			m := tui.New(a.svc, strings.Join(summaries, " "), a.cfg.Retrieval.TopK, config.Timeout(a.cfg.Generator.TimeoutSecs)*2)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}

func queryCmd(opts *rootOptions) *cobra.Command {
	var (
		topK     int
		document string
		files    []string
	)
	cmd := &cobra.Command{
		Use:   "query QUESTION",
		Short: "Answer one question and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if len(files) > 0 {
				if _, err := a.svc.IngestFiles(ctx, files); err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
			}
			res, err := a.svc.Query(ctx, service.QueryRequest{
				Question:       strings.Join(args, " "),
				TopK:           topK,
				FilterDocument: document,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (1-20, default from config)")
	cmd.Flags().StringVar(&document, "document", "", "Only search chunks of this document")
	cmd.Flags().StringSliceVar(&files, "file", nil, "Index these files before answering (for the in-memory store)")
	return cmd
}

func docsCmd(opts *rootOptions) *cobra.Command {
	docs := &cobra.Command{
		Use:   "docs",
		Short: "Inspect or remove indexed documents",
	}
	docs.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List indexed documents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, a, err := opts.setup(cmd.Context())
				if err != nil {
					return err
				}
				defer a.Close()
				stats, total, err := a.svc.Documents(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, d := range stats {
					fmt.Fprintf(out, "%s\t%d\n", d.DocumentName, d.ChunkCount)
				}
				fmt.Fprintf(out, "total chunks: %d\n", total)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete every chunk of a document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, a, err := opts.setup(cmd.Context())
				if err != nil {
					return err
				}
				defer a.Close()
				n, err := a.svc.DeleteDocument(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%d chunks)\n", args[0], n)
				return nil
			},
		},
	)
	return docs
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

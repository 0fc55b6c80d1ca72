package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ticket-similarity-api/internal/bootstrap"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Manage the ticket corpus and query similar tickets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <ticket-id>...",
		Short: "Add tickets from the system of record to the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				for _, id := range args {
					added, err := app.Ingest.Ingest(ctx, id)
					if err != nil {
						return err
					}
					if added {
						fmt.Printf("added   %s\n", id)
					} else {
						fmt.Printf("present %s\n", id)
					}
				}
				return nil
			})
		},
	}

	var (
		k          int
		withScores bool
	)
	queryCmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Print the IDs of the tickets most similar to the text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				results, err := app.Similarity.QuerySimilarScored(ctx, args[0], k)
				if err != nil {
					return err
				}
				for _, r := range results {
					if withScores {
						fmt.Printf("%s\t%.4f\n", r.TicketID, r.Score)
					} else {
						fmt.Println(r.TicketID)
					}
				}
				return nil
			})
		},
	}
	queryCmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of results (default from DEFAULT_TOP_K)")
	queryCmd.Flags().BoolVar(&withScores, "scores", false, "Print cosine similarity next to each ID")

	var workers int
	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest every ticket in the system of record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				if workers <= 0 {
					workers = app.Config.BackfillWorkers
				}
				result, err := app.Ingest.Backfill(ctx, workers)
				if result != nil {
					fmt.Printf("added %d, already present %d, failed %d\n",
						result.Added, result.Skipped, len(result.Failed))
					ids := make([]string, 0, len(result.Failed))
					for id := range result.Failed {
						ids = append(ids, id)
					}
					sort.Strings(ids)
					for _, id := range ids {
						fmt.Fprintf(os.Stderr, "  %s: %v\n", id, result.Failed[id])
					}
				}
				return err
			})
		},
	}
	backfillCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent ingestions (default from BACKFILL_WORKERS)")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the external vector index from the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				n, err := app.Similarity.Reindex(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("indexed %d records into %s\n", n, app.Similarity.Retriever())
				return nil
			})
		},
	}

	var outputFile string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export corpus embeddings as JSONL for Vertex AI Vector Search batch import",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				indexed, err := app.Similarity.EmbedCorpus(ctx)
				if err != nil {
					return err
				}

				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()

				n, err := writeDataPoints(f, indexed)
				if err != nil {
					return err
				}
				log.Printf("Exported %d embeddings to %s", n, outputFile)
				return f.Sync()
			})
		},
	}
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "embeddings.jsonl", "Output JSONL file path")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print corpus size and configured backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				n, err := app.Ingest.CorpusSize(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"records":   n,
					"backend":   app.Config.CorpusBackend,
					"retriever": app.Similarity.Retriever(),
				})
			})
		},
	}

	rootCmd.AddCommand(ingestCmd, queryCmd, backfillCmd, reindexCmd, exportCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp wires the application for a single command and releases it after
func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Printf("Error releasing resources: %v", err)
		}
	}()
	return fn(app)
}

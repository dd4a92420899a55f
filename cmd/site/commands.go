package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/standupsite/site/internal/content"
	"github.com/standupsite/site/internal/deploy"
	"github.com/standupsite/site/internal/sync"
	"github.com/standupsite/site/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var host, port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and revalidation webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "Host to bind to (overrides HOST)")
	cmd.Flags().StringVar(&port, "port", "6893", "Port to listen on (overrides PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	idx, err := a.openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	f, cf, err := a.fetcher(db)
	if err != nil {
		return err
	}

	opts := web.Options{
		Accessor:         content.NewAccessor(f),
		DB:               db,
		Index:            idx,
		DeployHook:       deploy.NewHook(a.cfg.DeployHookURL, &http.Client{Timeout: a.cfg.HTTPTimeout}),
		RevalidateSecret: a.cfg.RevalidateSecret,
	}
	if cf != nil {
		opts.Cache = cf
	}
	if opts.RevalidateSecret == "" {
		log.Warn().Msg("SANITY_REVALIDATE_SECRET not set, webhook will reject every call")
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           web.NewServer(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("offline", a.offline).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Mirror the content store into the local database and search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.offline {
				return errors.New("sync reads from the content store and cannot run with --offline")
			}
			remote, err := a.remote()
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			worker := sync.NewWorker(content.NewAccessor(remote), db, idx)
			stats, err := worker.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			fmt.Println()
			fmt.Println("=== Sync Complete ===")
			fmt.Printf("Total documents: %d\n", stats.Total)
			fmt.Printf("New:             %d\n", stats.New)
			fmt.Printf("Updated:         %d\n", stats.Updated)
			fmt.Printf("Skipped:         %d\n", stats.Skipped)
			fmt.Printf("Removed:         %d\n", stats.Removed)
			fmt.Printf("Invalid:         %d\n", stats.Invalid)
			fmt.Printf("Errors:          %d\n", stats.Errors)
			fmt.Printf("Duration:        %v\n", stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "list <kind>",
		Short:     "Print every document of a kind as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: content.Kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			accessor, closeFn, err := a.accessor()
			if err != nil {
				return err
			}
			defer closeFn()

			docs, err := accessor.ListKind(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if docs == nil {
				docs = []json.RawMessage{}
			}
			return printJSON(docs)
		},
	}
}

func newGetPostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get-post <slug>",
		Short: "Print the post with the given slug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accessor, closeFn, err := a.accessor()
			if err != nil {
				return err
			}
			defer closeFn()

			post, err := accessor.GetPost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if post == nil {
				return fmt.Errorf("post not found: %s", args[0])
			}
			return printJSON(post)
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Keyword search over the local index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			results, err := idx.Search(strings.Join(args, " "), limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("No results found")
				return nil
			}

			fmt.Printf("Found %d results:\n\n", len(results))
			for i, result := range results {
				fmt.Printf("%d. [%s] %s\n", i+1, result.Type, result.Title)
				if result.URL != "" {
					fmt.Printf("   URL: %s\n", result.URL)
				}
				fmt.Printf("   Score: %.3f\n", result.Score)
				if snippets, ok := result.Fragments["Content"]; ok && len(snippets) > 0 {
					fmt.Printf("   Preview: %s\n", snippets[0])
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every document against its schema rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			accessor, closeFn, err := a.accessor()
			if err != nil {
				return err
			}
			defer closeFn()

			checked, failed := 0, 0
			for _, kind := range content.Kinds {
				docs, err := accessor.ListKind(cmd.Context(), kind)
				if err != nil {
					return err
				}
				for _, raw := range docs {
					checked++
					if err := content.ValidateRaw(kind, raw); err != nil {
						failed++
						var meta content.Meta
						_ = json.Unmarshal(raw, &meta)
						fmt.Printf("%s %s: %v\n", kind, meta.ID, err)
					}
				}
			}

			fmt.Printf("\nChecked %d documents, %d invalid\n", checked, failed)
			if failed > 0 {
				return fmt.Errorf("%d invalid documents", failed)
			}
			return nil
		},
	}
}

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the local mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			startTime := time.Now()
			progressFn := func(current, total int) {
				percent := float64(current) / float64(total) * 100
				fmt.Printf("\rIndexing: %d/%d (%.1f%%)  ", current, total, percent)
			}
			if err := idx.Rebuild(db, progressFn); err != nil {
				return fmt.Errorf("rebuild index: %w", err)
			}

			indexCount, err := idx.Count()
			if err != nil {
				return fmt.Errorf("count index: %w", err)
			}

			fmt.Println()
			fmt.Println()
			fmt.Println("=== Reindex Complete ===")
			fmt.Printf("Documents indexed: %d\n", indexCount)
			fmt.Printf("Duration:          %v\n", time.Since(startTime).Round(time.Millisecond))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show mirror and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			byType, err := db.CountByType()
			if err != nil {
				return fmt.Errorf("count documents: %w", err)
			}
			indexCount, err := idx.Count()
			if err != nil {
				return fmt.Errorf("count index: %w", err)
			}

			kinds := make([]string, 0, len(byType))
			total := 0
			for kind, n := range byType {
				kinds = append(kinds, kind)
				total += n
			}
			sort.Strings(kinds)

			fmt.Println("=== Content Statistics ===")
			for _, kind := range kinds {
				fmt.Printf("%-10s %d\n", kind+":", byType[kind])
			}
			fmt.Printf("Documents in database: %d\n", total)
			fmt.Printf("Documents in index:    %d\n", indexCount)
			return nil
		},
	}
}

// accessor builds an Accessor for read commands along with a func that
// releases the mirror when it was opened
func (a *app) accessor() (*content.Accessor, func(), error) {
	if !a.offline {
		f, _, err := a.fetcher(nil)
		if err != nil {
			return nil, nil, err
		}
		return content.NewAccessor(f), func() {}, nil
	}

	db, err := a.openDB()
	if err != nil {
		return nil, nil, err
	}
	f, _, err := a.fetcher(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return content.NewAccessor(f), func() { db.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

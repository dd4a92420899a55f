package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/standupsite/site/internal/cache"
	"github.com/standupsite/site/internal/config"
	"github.com/standupsite/site/internal/content"
	"github.com/standupsite/site/internal/logging"
	"github.com/standupsite/site/internal/sanity"
	"github.com/standupsite/site/internal/search"
	"github.com/standupsite/site/internal/storage"
)

// app holds the state shared by every subcommand
type app struct {
	dataDir string
	envFile string
	offline bool

	cfg config.Config
	rdb *redis.Client
}

func (a *app) dbPath() string    { return filepath.Join(a.dataDir, "content.db") }
func (a *app) indexPath() string { return filepath.Join(a.dataDir, "bleve") }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "site",
		Short:        "Content service for the comedian site",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.Init(cfg.Env, cfg.LogLevel)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.rdb != nil {
				a.rdb.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "./data", "Directory for database and index files")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file read below the process environment")
	root.PersistentFlags().BoolVar(&a.offline, "offline", false, "Read content from the local mirror instead of the content store")

	root.AddCommand(
		newServeCmd(a),
		newSyncCmd(a),
		newListCmd(a),
		newGetPostCmd(a),
		newSearchCmd(a),
		newValidateCmd(a),
		newReindexCmd(a),
		newStatsCmd(a),
	)

	return root
}

func (a *app) openDB() (*storage.DB, error) {
	if err := os.MkdirAll(a.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := storage.Open(a.dbPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func (a *app) openIndex() (*search.Index, error) {
	if err := os.MkdirAll(a.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	idx, err := search.Open(a.indexPath())
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return idx, nil
}

// remote returns a fetcher for the hosted content store
func (a *app) remote() (content.Fetcher, error) {
	if err := a.cfg.RequireContentStore(); err != nil {
		return nil, err
	}
	return sanity.NewClient(sanity.Options{
		ProjectID:   a.cfg.ProjectID,
		Dataset:     a.cfg.Dataset,
		APIVersion:  a.cfg.APIVersion,
		Token:       a.cfg.ReadToken,
		UseCDN:      a.cfg.UseCDN,
		Perspective: a.cfg.Perspective,
		HTTPClient:  &http.Client{Timeout: a.cfg.HTTPTimeout},
	})
}

// fetcher picks the content source for read commands. With --offline the
// mirror in db answers; otherwise the content store does. A reachable Redis
// puts a cache in front of either.
func (a *app) fetcher(db *storage.DB) (content.Fetcher, *cache.Fetcher, error) {
	var base content.Fetcher = db
	if !a.offline {
		f, err := a.remote()
		if err != nil {
			return nil, nil, err
		}
		base = f
	}

	a.rdb = a.redis()
	if a.rdb == nil {
		return base, nil, nil
	}
	cf := cache.NewFetcher(base, a.rdb, cache.Options{TTL: a.cfg.CacheTTL, Prefix: a.cfg.CachePrefix})
	return cf, cf, nil
}

func (a *app) redis() *redis.Client {
	rdb := cache.NewClient(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if rdb != nil {
		log.Info().Str("addr", a.cfg.RedisAddr).Dur("ttl", a.cfg.CacheTTL).Msg("query cache enabled")
	}
	return rdb
}

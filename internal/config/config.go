// Package config resolves process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Fallback chains: the first non-empty name wins
var (
	ProjectIDKeys = []string{
		"SANITY_STUDIO_PROJECT_ID",
		"PUBLIC_SANITY_STUDIO_PROJECT_ID",
		"PUBLIC_SANITY_PROJECT_ID",
	}
	DatasetKeys = []string{
		"SANITY_STUDIO_DATASET",
		"PUBLIC_SANITY_STUDIO_DATASET",
		"PUBLIC_SANITY_DATASET",
	}
	DeployHookKeys = []string{
		"VERCEL_DEPLOY_HOOK_URL",
		"DEPLOY_HOOK_URL",
	}
)

const defaultDataset = "production"

// ErrProjectIDMissing is returned by RequireContentStore when no project id resolved
var ErrProjectIDMissing = errors.New("content store project id not configured (set SANITY_STUDIO_PROJECT_ID)")

// Config is the resolved, read-only process configuration
type Config struct {
	ProjectID     string
	Dataset       string
	DeployHookURL string

	APIVersion       string `env:"SANITY_API_VERSION" envDefault:"2024-01-01"`
	ReadToken        string `env:"SANITY_API_READ_TOKEN"`
	Perspective      string `env:"SANITY_PERSPECTIVE" envDefault:"published"`
	UseCDN           bool   `env:"SANITY_USE_CDN" envDefault:"false"`
	RevalidateSecret string `env:"SANITY_REVALIDATE_SECRET"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	Env         string        `env:"APP_ENV" envDefault:"production"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	Host        string        `env:"HOST" envDefault:"localhost"`
	Port        string        `env:"PORT" envDefault:"6893"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"60s"`
	CachePrefix   string        `env:"CACHE_PREFIX" envDefault:"content"`
}

// Source is a named set of configuration values
type Source struct {
	Name   string
	Values map[string]string
}

// Lookup returns the value of key in the source
func (s Source) Lookup(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// EnvironmentSource reads the process environment
func EnvironmentSource() Source {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}
	return Source{Name: "environment", Values: values}
}

// DotenvSource reads a .env file. A missing file yields an empty source.
func DotenvSource(path string) (Source, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		values = map[string]string{}
	} else if err != nil {
		return Source{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Source{Name: "dotenv", Values: values}, nil
}

// Resolve returns the first non-empty value for keys, consulting sources in
// priority order and, within a source, keys in order
func Resolve(sources []Source, keys []string, def string) string {
	for _, src := range sources {
		for _, key := range keys {
			if v, ok := src.Lookup(key); ok && v != "" {
				return v
			}
		}
	}
	return def
}

// Load builds the configuration from the process environment with envFile
// as a lower-priority source
func Load(envFile string) (Config, error) {
	sources := []Source{EnvironmentSource()}
	if envFile != "" {
		dotenv, err := DotenvSource(envFile)
		if err != nil {
			return Config{}, err
		}
		sources = append(sources, dotenv)
	}
	return LoadFrom(sources...)
}

// LoadFrom builds the configuration from sources, highest priority first
func LoadFrom(sources ...Source) (Config, error) {
	merged := make(map[string]string)
	for i := len(sources) - 1; i >= 0; i-- {
		for k, v := range sources[i].Values {
			if v != "" {
				merged[k] = v
			}
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: merged}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.ProjectID = Resolve(sources, ProjectIDKeys, "")
	cfg.Dataset = Resolve(sources, DatasetKeys, defaultDataset)
	cfg.DeployHookURL = Resolve(sources, DeployHookKeys, "")

	return cfg, nil
}

// RequireContentStore reports whether the remote content store can be reached
// with this configuration
func (c Config) RequireContentStore() error {
	if c.ProjectID == "" {
		return ErrProjectIDMissing
	}
	return nil
}

// Addr returns the HTTP listen address
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Package cacheconfig defines the on-disk/environment configuration for
// the market-data cache's operator tooling. The cache core itself
// (internal/cache, internal/fetch) takes its parameters as explicit
// constructor arguments per spec §9 ("re-architect as explicitly
// constructed cache objects... pass by reference/handle"); this package
// only exists to load those arguments once, at the CLI boundary, the way
// the teacher's cmd/altmount loads config.Config via config.LoadConfig.
package cacheconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/javi11/marketcache/internal/retrypolicy"
)

// Config is the sole runtime parameterization of the cache (spec §6:
// "the cache directory is the sole runtime parameter; credentials and
// provider endpoints belong to providers, not the cache" — extended here
// with the retry/compression/strictness knobs the orchestrator needs).
type Config struct {
	CacheDir           string      `mapstructure:"cache_dir" yaml:"cache_dir"`
	SegmentCompression bool        `mapstructure:"segment_compression" yaml:"segment_compression"`
	DefaultStrict      bool        `mapstructure:"default_strict" yaml:"default_strict"`
	Retry              RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig mirrors retrypolicy.Config in duration-friendly,
// config-file-friendly form.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Base       float64       `mapstructure:"base" yaml:"base"`
	Jitter     bool          `mapstructure:"jitter" yaml:"jitter"`
}

// ToRetryPolicy converts the config-file shape into retrypolicy.Config,
// defaulting RetryOn to the standard retryable kinds.
func (r RetryConfig) ToRetryPolicy() retrypolicy.Config {
	return retrypolicy.Config{
		MaxRetries: r.MaxRetries,
		BaseDelay:  r.BaseDelay,
		MaxDelay:   r.MaxDelay,
		Base:       r.Base,
		Jitter:     r.Jitter,
		RetryOn:    []retrypolicy.ErrorKind{retrypolicy.KindRateLimit, retrypolicy.KindProviderError, retrypolicy.KindTimeout},
	}
}

// Default returns a conservative, ready-to-use configuration.
func Default() Config {
	return Config{
		CacheDir:           "./cache",
		SegmentCompression: true,
		DefaultStrict:      true,
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  200 * time.Millisecond,
			MaxDelay:   10 * time.Second,
			Base:       2.0,
			Jitter:     true,
		},
	}
}

// Load reads configuration from path (YAML), overlaying environment
// variables prefixed MARKETCACHE_ (e.g. MARKETCACHE_CACHE_DIR), the way
// the teacher's config package layers viper over a YAML file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MARKETCACHE")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("cache_dir", def.CacheDir)
	v.SetDefault("segment_compression", def.SegmentCompression)
	v.SetDefault("default_strict", def.DefaultStrict)
	v.SetDefault("retry.max_retries", def.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", def.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", def.Retry.MaxDelay)
	v.SetDefault("retry.base", def.Retry.Base)
	v.SetDefault("retry.jitter", def.Retry.Jitter)

	if err := v.ReadInConfig(); err != nil {
		// With an explicit SetConfigFile path, viper reports a missing file
		// as a plain not-exist error rather than ConfigFileNotFoundError.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("cacheconfig: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cacheconfig: unmarshal: %w", err)
	}
	if cfg.CacheDir == "" {
		return Config{}, fmt.Errorf("cacheconfig: cache_dir must not be empty")
	}
	return cfg, nil
}

// WriteDefault renders a commented default config template to path on fs.
func WriteDefault(fs afero.Fs, path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("cacheconfig: marshal default: %w", err)
	}
	header := []byte("# market-data cache configuration\n# generated by `marketcache config init`\n")
	return afero.WriteFile(fs, path, append(header, data...), 0o644)
}

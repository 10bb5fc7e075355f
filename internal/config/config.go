// Package config loads engine configuration from defaults, an optional
// config file, and FILMETO_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds engine configuration.
type Config struct {
	Plugins   PluginsConfig
	Resources ResourcesConfig
	Log       LogConfig
}

// PluginsConfig holds plugin discovery and supervision settings.
type PluginsConfig struct {
	Dir             string
	EntryPoint      string
	Interpreter     string
	ReadyTimeout    time.Duration
	PingTimeout     time.Duration
	StopGracePeriod time.Duration
	PingBeforeReuse bool
}

// ResourcesConfig holds resource cache settings and size ceilings.
type ResourcesConfig struct {
	CacheDir        string
	DownloadTimeout time.Duration
	MaxImageSize    int64
	MaxVideoSize    int64
	MaxAudioSize    int64
	CleanupMaxAge   time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	JSON  bool
}

// Load reads configuration. Env var overrides use prefix FILMETO_, e.g.
// FILMETO_PLUGINS_DIR. An explicit path (or FILMETO_CONFIG) selects the
// config file; otherwise ~/.config/filmeto/engine.yaml is tried.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("plugins.dir", "plugins")
	v.SetDefault("plugins.entry_point", "main.py")
	v.SetDefault("plugins.interpreter", "python3")
	v.SetDefault("plugins.ready_timeout", "60s")
	v.SetDefault("plugins.ping_timeout", "5s")
	v.SetDefault("plugins.stop_grace_period", "5s")
	v.SetDefault("plugins.ping_before_reuse", false)
	v.SetDefault("resources.cache_dir", filepath.Join(os.TempDir(), "filmeto_cache"))
	v.SetDefault("resources.download_timeout", "300s")
	v.SetDefault("resources.max_image_size", 50*1024*1024)
	v.SetDefault("resources.max_video_size", 500*1024*1024)
	v.SetDefault("resources.max_audio_size", 100*1024*1024)
	v.SetDefault("resources.cleanup_max_age", "24h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetConfigType("yaml")
	if path == "" {
		path = os.Getenv("FILMETO_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("engine")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "filmeto"))
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FILMETO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return Config{
		Plugins: PluginsConfig{
			Dir:             v.GetString("plugins.dir"),
			EntryPoint:      v.GetString("plugins.entry_point"),
			Interpreter:     v.GetString("plugins.interpreter"),
			ReadyTimeout:    v.GetDuration("plugins.ready_timeout"),
			PingTimeout:     v.GetDuration("plugins.ping_timeout"),
			StopGracePeriod: v.GetDuration("plugins.stop_grace_period"),
			PingBeforeReuse: v.GetBool("plugins.ping_before_reuse"),
		},
		Resources: ResourcesConfig{
			CacheDir:        v.GetString("resources.cache_dir"),
			DownloadTimeout: v.GetDuration("resources.download_timeout"),
			MaxImageSize:    v.GetInt64("resources.max_image_size"),
			MaxVideoSize:    v.GetInt64("resources.max_video_size"),
			MaxAudioSize:    v.GetInt64("resources.max_audio_size"),
			CleanupMaxAge:   v.GetDuration("resources.cleanup_max_age"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
	}, nil
}

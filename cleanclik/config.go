package cleanclik

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig   `toml:"log"`
	Web    WebConfig   `toml:"web"`
	DB     DBConfig    `toml:"db"`
	Cards  CardsConfig `toml:"cards"`
	Spaces struct {
		Key      string `toml:"key"`
		Secret   string `toml:"secret"`
		Region   string `toml:"region"`
		Bucket   string `toml:"bucket"`
		CardRoot string `toml:"cardroot"`
	} `toml:"spaces"`
}

type WebConfig struct {
	Addr          string   `toml:"addr"`
	AllowOrigins  []string `toml:"allow_origins"`
	ShareRateMax  int      `toml:"share_rate_max"`
	ShareRateSecs int      `toml:"share_rate_secs"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type CardsConfig struct {
	AssetCacheSize  int    `toml:"asset_cache_size"`
	MaxRetries      int    `toml:"max_retries"`
	RetryBackoffMS  int    `toml:"retry_backoff_ms"`
	RenderTimeoutMS int    `toml:"render_timeout_ms"`
	AppLink         string `toml:"app_link"`
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/phrazzld/reelchain/internal/domain"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "REELCHAIN"

// storeURLsEnv is the shorthand for the instance list: comma separated
// name=url pairs, or bare URLs that are named by position.
const storeURLsEnv = EnvPrefix + "_STORE_URLS"

var validate = validator.New()

// Load reads configuration from the working directory. See LoadFrom.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom builds the configuration from, in increasing precedence: defaults,
// dir/config.yaml when present, and REELCHAIN_ environment variables. A
// dir/.env file is loaded into the environment first without overriding
// variables that are already set. The result is validated; any failure is a
// configuration error.
func LoadFrom(dir string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, domain.E(domain.KindConfiguration, op, fmt.Errorf("read .env: %w", err))
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, domain.E(domain.KindConfiguration, op, fmt.Errorf("read config file: %w", err))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.E(domain.KindConfiguration, op, fmt.Errorf("decode config: %w", err))
	}

	if raw := os.Getenv(storeURLsEnv); raw != "" {
		instances, err := ParseStoreURLs(raw)
		if err != nil {
			return nil, domain.E(domain.KindConfiguration, op, err)
		}
		cfg.Store.Instances = instances
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, domain.E(domain.KindConfiguration, op, fmt.Errorf("invalid configuration: %w", err))
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_grace", "30s")

	v.SetDefault("store.instances", []map[string]string{})
	v.SetDefault("store.health_interval", "60s")
	v.SetDefault("store.connect_attempts", 3)

	v.SetDefault("tasks.timeout", "30s")
	v.SetDefault("tasks.acquire_timeout", "10s")
	v.SetDefault("tasks.result_ttl", "1h")
	v.SetDefault("tasks.audio_limit", 2)
	v.SetDefault("tasks.image_limit", 5)
	v.SetDefault("tasks.max_chains", 0)
	v.SetDefault("tasks.admission_threshold", 90.0)
	v.SetDefault("tasks.store_error_threshold", 3)

	v.SetDefault("eventlog.capacity", 1000)
	v.SetDefault("eventlog.poll_window", "10s")

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model", "gemini-1.5-flash")

	v.SetDefault("voice.api_key", "")
	v.SetDefault("voice.voice_id", "")
	v.SetDefault("voice.base_url", "https://api.elevenlabs.io")

	v.SetDefault("images.base_url", "https://image.pollinations.ai")
	v.SetDefault("images.model", "Flux")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime", "60m")

	v.SetDefault("security.encryption_key", "")

	v.SetDefault("database.url", "")
}

// ParseStoreURLs parses the REELCHAIN_STORE_URLS shorthand.
func ParseStoreURLs(raw string) ([]StoreInstance, error) {
	var out []StoreInstance
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, url, ok := strings.Cut(part, "=")
		if !ok || strings.Contains(name, "://") {
			name, url = fmt.Sprintf("store-%d", i+1), part
		}
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if name == "" || url == "" {
			return nil, fmt.Errorf("%s: malformed entry %q", storeURLsEnv, part)
		}
		out = append(out, StoreInstance{Name: name, URL: url})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no instances", storeURLsEnv)
	}
	return out, nil
}

package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the magma service.
//
// Values come from, in increasing precedence: defaults, an optional magma.yaml in the working
// directory or ./configs, a .env file, and MAGMA_* environment variables (geocoder.api_key maps
// to MAGMA_GEOCODER_API_KEY).
type Config struct {
	Env      string         `mapstructure:"env"`  // Env is the current environment: local, development, production.
	Port     int            `mapstructure:"port"` // Port is the HTTP server port.
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	Geology  GeologyConfig  `mapstructure:"geology"`
	Timeout  time.Duration  `mapstructure:"http.timeout"` // Timeout bounds every outbound HTTP request.
	Cache    CacheConfig    `mapstructure:"cache"`
	Database PostgresConfig `mapstructure:"postgres"` // Database is used by the postgres cache backend.
	Model    ModelConfig    `mapstructure:"model"`
}

// GeocoderConfig selects the place-name resolver.
type GeocoderConfig struct {
	Provider  string `mapstructure:"provider"`   // nominatim or google
	APIKey    string `mapstructure:"api_key"`    // required for google
	URL       string `mapstructure:"url"`        // overrides the Nominatim endpoint
	UserAgent string `mapstructure:"user_agent"` // sent to Nominatim
}

// GeologyConfig points at the geology data service.
type GeologyConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"`     // file, postgres or valkey
	File       string `mapstructure:"file"`        // path of the JSON cache file
	ValkeyAddr string `mapstructure:"valkey_addr"` // host:port of the Valkey server
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`     // Host is the database server address.
	Port     string `mapstructure:"port"`     // Port is the database server port.
	User     string `mapstructure:"user"`     // User is the database user.
	Password string `mapstructure:"password"` // Password is the database user's password.
	Name     string `mapstructure:"db_name"`  // Name is the name of the database.
}

// DSN returns the connection string for pgx.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host + ":" + p.Port,
		Path:   "/" + p.Name,
	}

	return u.String()
}

// ModelConfig configures the narrative model and its runtime.
type ModelConfig struct {
	Path        string `mapstructure:"path"`         // .gguf file or directory holding one
	ServerBin   string `mapstructure:"server_bin"`   // llama-server executable
	Endpoint    string `mapstructure:"endpoint"`     // attach to a running server instead
	Device      string `mapstructure:"device"`       // auto, cuda or cpu
	MaxLength   int    `mapstructure:"max_length"`   // prompt plus continuation, in tokens
	ContextSize int    `mapstructure:"context_size"` // 0 sizes it to max_length, capped by the trained length
	Threads     int    `mapstructure:"threads"`
	Seed        uint64 `mapstructure:"seed"` // 0 seeds the sampler randomly
}

var defaults = map[string]string{
	"env":                 "production",
	"port":                "8080",
	"http.timeout":        "15s",
	"geocoder.provider":   "nominatim",
	"geocoder.api_key":    "",
	"geocoder.url":        "",
	"geocoder.user_agent": "MAGMA/1.0",
	"geology.url":         "https://macrostrat.org/api/v2",
	"cache.backend":       "file",
	"cache.file":          "geo_cache.json",
	"cache.valkey_addr":   "localhost:6379",
	"postgres.host":       "localhost",
	"postgres.port":       "5432",
	"postgres.user":       "",
	"postgres.password":   "",
	"postgres.db_name":    "magma",
	"model.path":          "./local_model",
	"model.server_bin":    "llama-server",
	"model.endpoint":      "",
	"model.device":        "auto",
	"model.max_length":    "1000",
	"model.context_size":  "0",
	"model.threads":       "0",
	"model.seed":          "0",
}

// Environment names kept for compatibility with existing deployments.
var aliases = map[string][]string{
	"geocoder.api_key":  {"GOOGLE_MAPS_API_KEY"},
	"postgres.host":     {"DB_HOST"},
	"postgres.port":     {"DB_PORT"},
	"postgres.user":     {"DB_USERNAME"},
	"postgres.password": {"DB_PASSWORD"},
	"postgres.db_name":  {"DB_NAME"},
}

// MustLoad loads the configuration and panics when a value cannot be parsed.
func MustLoad() *Config {
	_ = godotenv.Load()

	v := newViper()

	timeout, err := time.ParseDuration(v.GetString("http.timeout"))
	if err != nil {
		panic("failed to parse http timeout from configuration")
	}

	port, err := strconv.Atoi(v.GetString("port"))
	if err != nil {
		panic("failed to parse port for http server from configuration")
	}

	maxLength, err := strconv.Atoi(v.GetString("model.max_length"))
	if err != nil || maxLength <= 0 {
		panic("failed to parse model max length from configuration, must be a positive integer")
	}

	contextSize, err := strconv.Atoi(v.GetString("model.context_size"))
	if err != nil {
		panic("failed to parse model context size from configuration, must be an integer")
	}

	threads, err := strconv.Atoi(v.GetString("model.threads"))
	if err != nil {
		panic("failed to parse model threads from configuration, must be an integer")
	}

	seed, err := strconv.ParseUint(v.GetString("model.seed"), 10, 64)
	if err != nil {
		panic("failed to parse model seed from configuration, must be an unsigned integer")
	}

	return &Config{
		Env:     v.GetString("env"),
		Port:    port,
		Timeout: timeout,
		Geocoder: GeocoderConfig{
			Provider:  strings.ToLower(v.GetString("geocoder.provider")),
			APIKey:    v.GetString("geocoder.api_key"),
			URL:       v.GetString("geocoder.url"),
			UserAgent: v.GetString("geocoder.user_agent"),
		},
		Geology: GeologyConfig{URL: v.GetString("geology.url")},
		Cache: CacheConfig{
			Backend:    strings.ToLower(v.GetString("cache.backend")),
			File:       v.GetString("cache.file"),
			ValkeyAddr: v.GetString("cache.valkey_addr"),
		},
		Database: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Name:     v.GetString("postgres.db_name"),
		},
		Model: ModelConfig{
			Path:        v.GetString("model.path"),
			ServerBin:   v.GetString("model.server_bin"),
			Endpoint:    v.GetString("model.endpoint"),
			Device:      strings.ToLower(v.GetString("model.device")),
			MaxLength:   maxLength,
			ContextSize: contextSize,
			Threads:     threads,
			Seed:        seed,
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("magma")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // optional

	v.SetEnvPrefix("MAGMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range aliases {
		envs := append([]string{"MAGMA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	return v
}

// Validate reports settings that are well-formed but unusable together.
func (c *Config) Validate() error {
	var errs []string

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be 1-65535, got %d", c.Port))
	}
	switch c.Geocoder.Provider {
	case "nominatim":
	case "google":
		if c.Geocoder.APIKey == "" {
			errs = append(errs, "geocoder.api_key is required for the google provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown geocoder.provider %q", c.Geocoder.Provider))
	}
	switch c.Cache.Backend {
	case "file", "postgres", "valkey", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown cache.backend %q", c.Cache.Backend))
	}
	switch c.Model.Device {
	case "auto", "cuda", "cpu":
	default:
		errs = append(errs, fmt.Sprintf("unknown model.device %q", c.Model.Device))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

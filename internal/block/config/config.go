package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ProxyAddr is the listen address of the intercepting HTTP proxy.
	ProxyAddr string `koanf:"proxy_addr" validate:"required,listen_addr"`

	// PanelAddr is the listen address of the panel API and metrics.
	PanelAddr string `koanf:"panel_addr" validate:"required,listen_addr"`

	// NoticeBase is the origin blocked navigations are redirected to. It must
	// reach the proxy directly, since the proxy serves the notice page.
	NoticeBase string `koanf:"notice_base" validate:"required,url"`

	// StoreBackend selects where the blocklist is persisted.
	StoreBackend string `koanf:"store_backend" validate:"required,oneof=memory bolt redis"`

	// BoltPath is the bbolt database file, required for the bolt backend.
	BoltPath string `koanf:"bolt_path" validate:"required_if=StoreBackend bolt"`

	// RedisAddr is the Redis server in host:port form, required for the redis backend.
	RedisAddr string `koanf:"redis_addr" validate:"required_if=StoreBackend redis"`

	// RedisKey is the Redis key holding the blocklist.
	RedisKey string `koanf:"redis_key" validate:"required"`

	// RedisChannel is the pub/sub channel list changes are announced on.
	RedisChannel string `koanf:"redis_channel" validate:"required"`

	// CacheSize bounds the matcher's decision cache. Zero disables it.
	CacheSize uint `koanf:"cache_size" validate:"lte=1000000"`

	// BloomFPRate is the target false-positive rate of the matcher prefilter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`

	// SeedFile optionally names a YAML, JSON or TOML file whose "sites" list
	// is stored on first run, before the blocker initializes.
	SeedFile string `koanf:"seed_file"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:          "prod",
	LogLevel:     "info",
	ProxyAddr:    "127.0.0.1:8118",
	PanelAddr:    "127.0.0.1:8119",
	NoticeBase:   "http://127.0.0.1:8118",
	StoreBackend: "bolt",
	BoltPath:     "/var/lib/rr-block/sites.db",
	RedisKey:     "rr-block:sites",
	RedisChannel: "rr-block:sites:changed",
	CacheSize:    4096,
	BloomFPRate:  0.01,
}

// validListenAddr validates a "host:port" listen address. The host may be
// empty (all interfaces), an IP literal or a host name; the port must be in
// 1..65535.
func validListenAddr(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " /") {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads environment variables with the prefix "BLOCK_".
// It transforms the keys to lowercase and removes the prefix,
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "BLOCK_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "BLOCK_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into the provided Koanf instance.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "listen_addr" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

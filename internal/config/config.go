package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	DefaultBufferSize = 8192
	DefaultMaxWaiters = 8

	DefaultPollPeriod          = 60 * time.Second
	DefaultMetricsInterval     = 10 * time.Second
	DefaultAdminAddr           = "0.0.0.0:9989"
	DefaultFailureThreshold    = 3
	DefaultCooldown            = 5 * time.Second
	DefaultConnectTimeout      = 10 * time.Second
	DefaultFileWriteDelay      = 150 * time.Millisecond // small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sane defaults and a single
// proxy pointed at a local discovery service, useful for local smoke
// testing before a real config.yaml exists.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Admin: AdminConfig{
			Addr:                DefaultAdminAddr,
			MetricsIntervalSecs: DefaultMetricsInterval,
		},
		BufferSize: DefaultBufferSize,
		Proxies: []ProxyConfig{
			{
				Label: "default",
				Discovery: DiscoveryConfig{
					BaseAddr:   "http://localhost:4180",
					Namespace:  "default",
					TargetPath: "/svc/app",
					PollPeriod: DefaultPollPeriod,
				},
				Servers: []ServerConfig{
					{Addr: ":7070"},
				},
				MaxWaiters: DefaultMaxWaiters,
				Balancer: BalancerConfig{
					FailureThreshold: DefaultFailureThreshold,
					Cooldown:         DefaultCooldown,
				},
			},
		},
	}
}

// Load reads configuration from file and environment variables, falling
// back to DefaultConfig for anything unset. onConfigChange, if non-nil,
// is invoked (debounced) whenever the config file changes on disk.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("OLLA_L4")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("OLLA_L4_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	// decode by the structs' yaml tags (buffer_size, max_waiters, ...)
	// rather than viper's default mapstructure tags
	if err := viper.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // ignore rapid-fire duplicate events
			}
			lastReload = now

			// on some platforms the write event fires before the file is
			// fully flushed
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}

// Validate checks configuration invariants that must hold before any
// proxy starts. A TLS server stanza with neither a default identity nor
// any named identities can never complete a handshake, so this fails
// loudly at load time rather than per-connection (spec.md §9).
func Validate(cfg *Config) error {
	for _, p := range cfg.Proxies {
		for _, s := range p.Servers {
			if !s.TLS {
				continue
			}
			if s.DefaultIdentity == "" && len(s.Identities) == 0 {
				return fmt.Errorf("proxy %q: tls server %s has no default_identity and no identities", p.Label, s.Addr)
			}
		}
	}
	return nil
}

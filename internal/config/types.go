package config

import "time"

// Config is the declarative description of every proxy this process
// runs plus the ambient concerns (logging, admin surface) shared across
// all of them.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Admin       AdminConfig       `yaml:"admin"`
	Proxies     []ProxyConfig     `yaml:"proxies"`
	BufferSize  int               `yaml:"buffer_size"`
	Engineering EngineeringConfig `yaml:"engineering"`
}

// ProxyConfig describes one independent proxy: where it discovers
// upstreams, how it listens, and how it originates connections to the
// endpoints it selects.
type ProxyConfig struct {
	Label      string         `yaml:"label"`
	Discovery  DiscoveryConfig `yaml:"discovery"`
	Servers    []ServerConfig `yaml:"servers"`
	Client     ClientConfig   `yaml:"client"`
	MaxWaiters int            `yaml:"max_waiters"`
	Balancer   BalancerConfig `yaml:"balancer"`
}

// DiscoveryConfig points the resolver at the discovery HTTP API for one
// proxy's endpoint set.
type DiscoveryConfig struct {
	BaseAddr   string        `yaml:"base_addr"`
	Namespace  string        `yaml:"namespace"`
	TargetPath string        `yaml:"target_path"`
	PollPeriod time.Duration `yaml:"poll_period"`
}

// BalancerConfig tunes endpoint liveness: how many consecutive connect
// failures mark an endpoint Failed, and how long it sits in cooldown
// before becoming eligible for selection again.
type BalancerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// ServerConfig is one listening socket for a proxy: plain TCP or
// TLS-terminating with SNI-based identity selection.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	TLS             bool     `yaml:"tls"`
	ALPNProtocols   []string `yaml:"alpn_protocols"`
	DefaultIdentity string   `yaml:"default_identity"`
	Identities      map[string]TLSIdentity `yaml:"identities"`
}

// TLSIdentity names a certificate/key pair an SNI resolver can hand out
// for a given server_name.
type TLSIdentity struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ClientConfig describes how a proxy's connector originates TLS to the
// upstream it selects; zero value means plain TCP.
type ClientConfig struct {
	TLS            bool          `yaml:"tls"`
	DNSName        string        `yaml:"dns_name"`
	TrustCerts     []string      `yaml:"trust_certs"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AdminConfig is the external admin HTTP surface's configuration; the
// core only needs the interval it drains the metrics registry on.
type AdminConfig struct {
	Addr                string        `yaml:"addr"`
	MetricsIntervalSecs time.Duration `yaml:"metrics_interval_secs"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	ShowNerdStats bool `yaml:"show_nerdstats"`
}

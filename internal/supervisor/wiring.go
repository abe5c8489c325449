package supervisor

import (
	"fmt"
	"time"

	"github.com/thushan/olla/internal/adapter/acceptor"
	"github.com/thushan/olla/internal/adapter/connector"
	"github.com/thushan/olla/internal/adapter/discovery"
	"github.com/thushan/olla/internal/config"
	"github.com/thushan/olla/internal/core/ports"
	"github.com/thushan/olla/internal/logger"
)

const (
	defaultCooldown       = 5 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

func newResolver(cfg config.ProxyConfig, metrics ports.MetricsSink, log *logger.StyledLogger) *discovery.Resolver {
	d := cfg.Discovery
	return discovery.NewResolver(cfg.Label, d.BaseAddr, d.Namespace, d.TargetPath, d.PollPeriod, metrics, log)
}

func newConnector(cfg config.ClientConfig) (ports.Connector, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if !cfg.TLS {
		return &connector.Plain{ConnectTimeout: timeout}, nil
	}
	return connector.NewSecure(cfg.DNSName, cfg.TrustCerts, timeout)
}

// newAcceptors binds every server stanza's listening socket up front,
// closing any already-bound listener if a later stanza fails so New
// never leaks a bound port on error.
func newAcceptors(cfg config.ProxyConfig) ([]ports.Acceptor, error) {
	acceptors := make([]ports.Acceptor, 0, len(cfg.Servers))

	closeAll := func() {
		for _, a := range acceptors {
			_ = a.Close()
		}
	}

	for _, srv := range cfg.Servers {
		if !srv.TLS {
			a, err := acceptor.Listen(srv.Addr)
			if err != nil {
				closeAll()
				return nil, err
			}
			acceptors = append(acceptors, a)
			continue
		}

		resolver, err := acceptor.NewConfigResolver(srv)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("supervisor: %s: %w", srv.Addr, err)
		}
		a, err := acceptor.ListenTLS(srv.Addr, resolver, srv.ALPNProtocols)
		if err != nil {
			closeAll()
			return nil, err
		}
		acceptors = append(acceptors, a)
	}

	return acceptors, nil
}

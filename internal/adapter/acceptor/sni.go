package acceptor

import (
	"crypto/tls"
	"fmt"

	"github.com/thushan/olla/internal/config"
)

// ConfigResolver is a ports.SNIResolver backed by a server stanza's
// Identities map and DefaultIdentity, loaded once at startup. It is the
// default collaborator an Acceptor dials through (spec.md §6's SNI
// resolver contract); a deployment may substitute its own.
type ConfigResolver struct {
	byName   map[string]*tls.Certificate
	fallback *tls.Certificate
}

// NewConfigResolver loads every named identity and the default identity
// from a server stanza. Returns an error identifying the first
// certificate/key pair that fails to parse.
func NewConfigResolver(server config.ServerConfig) (*ConfigResolver, error) {
	r := &ConfigResolver{byName: make(map[string]*tls.Certificate, len(server.Identities))}

	for name, id := range server.Identities {
		cert, err := tls.LoadX509KeyPair(id.CertFile, id.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("acceptor: loading identity %q: %w", name, err)
		}
		r.byName[name] = &cert
	}

	if server.DefaultIdentity != "" {
		id, ok := server.Identities[server.DefaultIdentity]
		if !ok {
			return nil, fmt.Errorf("acceptor: default_identity %q not present in identities", server.DefaultIdentity)
		}
		cert, err := tls.LoadX509KeyPair(id.CertFile, id.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("acceptor: loading default identity %q: %w", server.DefaultIdentity, err)
		}
		r.fallback = &cert
	}

	return r, nil
}

// CertificateFor implements ports.SNIResolver: exact match on
// serverName, falling back to the configured default identity, or an
// error if neither is available (the handshake is then aborted).
func (r *ConfigResolver) CertificateFor(serverName string) (*tls.Certificate, error) {
	if cert, ok := r.byName[serverName]; ok {
		return cert, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("acceptor: no identity for server_name %q and no default identity configured", serverName)
}

package proxy

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Resolver maps logical hostnames to concrete backend addresses. Differential
// testing must guarantee that the proxy, not the system resolver, decides
// which backend a logical name reaches, so lookups consult the static table
// before falling back to the default dialer.
type Resolver struct {
	log    logrus.FieldLogger
	hosts  map[string]string
	dialer *net.Dialer
}

// NewResolver creates a resolver over a static host table. Table values may
// be bare hosts or host:port pairs; a bare host keeps the dialed port.
func NewResolver(log logrus.FieldLogger, hosts map[string]string) *Resolver {
	return &Resolver{
		log:    log.WithField("component", "proxy_resolver"),
		hosts:  hosts,
		dialer: &net.Dialer{Timeout: 10 * time.Second},
	}
}

// DialContext rewrites the dialed address per the host table, then dials.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return r.dialer.DialContext(ctx, network, addr)
	}

	if mapped, ok := r.hosts[host]; ok {
		if _, _, splitErr := net.SplitHostPort(mapped); splitErr == nil {
			addr = mapped
		} else {
			addr = net.JoinHostPort(mapped, port)
		}

		r.log.WithFields(logrus.Fields{
			"host":    host,
			"mapped":  addr,
			"network": network,
		}).Debug("resolved logical host")
	}

	return r.dialer.DialContext(ctx, network, addr)
}

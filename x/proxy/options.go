package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ima-proxy/x/access"
	"github.com/compose-network/ima-proxy/x/store"
)

// Option configures the proxy
type Option func(*Config)

// Config holds proxy dependencies
type Config struct {
	Store         store.Store
	Access        access.Checker
	Authenticator Authenticator
	Router        MessageRouter
	Registerer    prometheus.Registerer
	Clock         func() time.Time
}

// WithStore sets the state arena
func WithStore(s store.Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithAccess sets the role checker
func WithAccess(checker access.Checker) Option {
	return func(c *Config) {
		c.Access = checker
	}
}

// WithAuthenticator sets how incoming batches are authenticated
func WithAuthenticator(a Authenticator) Option {
	return func(c *Config) {
		c.Authenticator = a
	}
}

// WithRouter replaces the default message router
func WithRouter(r MessageRouter) Option {
	return func(c *Config) {
		c.Router = r
	}
}

// WithRegisterer sets where metrics are registered
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// WithClock overrides time.Now for receipts
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

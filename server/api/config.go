package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/compose-network/ima-proxy/server/api/middleware"
)

// Config holds the HTTP listener limits and the caller signature policy.
type Config struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
	// MaxBodyBytes caps both signed bodies and decoded batches.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// MaxSignatureSkew is how far X-Timestamp may drift from the server clock.
	MaxSignatureSkew time.Duration `mapstructure:"max_signature_skew" yaml:"max_signature_skew"`
	CORS             bool          `mapstructure:"cors"               yaml:"cors"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":8081",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		MaxBodyBytes:      10 << 20,
		MaxSignatureSkew:  middleware.DefaultMaxSkew,
	}
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.MaxSignatureSkew < time.Second {
		return fmt.Errorf("max_signature_skew must be at least 1s, got %s", c.MaxSignatureSkew)
	}
	return nil
}

// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Connector creates transports for the configured network.
type Connector struct {
	Config Config
	Store  CredentialStore
	HTTP   *http.Client
	Log    zerolog.Logger
}

// New validates cfg and returns a connector that persists sessions in store.
func New(cfg Config, store CredentialStore, log zerolog.Logger) (*Connector, error) {
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("failed to post-process config: %w", err)
	}
	return &Connector{
		Config: cfg,
		Store:  store,
		HTTP:   &http.Client{Timeout: 2 * time.Minute},
		Log:    log,
	}, nil
}

// Network returns the name of the configured network.
func (c *Connector) Network() string {
	return c.Config.Network
}

// NewTransport returns a fresh, unconnected transport.
func (c *Connector) NewTransport() Transport {
	switch c.Config.Network {
	case NetworkMatrix:
		return NewMatrixTransport(c.Config.Matrix, c.Store, c.HTTP, c.Config.MaxImageSize, c.Log)
	default:
		return NewMattermostTransport(c.Config.Mattermost, c.Store, c.HTTP, c.Config.MaxImageSize, c.Log)
	}
}

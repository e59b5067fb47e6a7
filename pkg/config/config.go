// Copyright 2024-2026 Aiku AI

// Package config loads the replybot configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/replybot/pkg/connector"
	"github.com/aiku/replybot/pkg/credstore"
	"github.com/aiku/replybot/pkg/dispatch"
	"github.com/aiku/replybot/pkg/lifecycle"
	"github.com/aiku/replybot/pkg/trigger"
)

//go:embed example-config.yaml
var ExampleConfig string

// Environment variables overriding secrets of the selected network.
const (
	EnvToken    = "REPLYBOT_TOKEN"
	EnvPassword = "REPLYBOT_PASSWORD"
)

// Config is the whole configuration file.
type Config struct {
	Connector connector.Config `yaml:",inline"`

	State     StateConfig             `yaml:"state"`
	Dispatch  DispatchConfig          `yaml:"dispatch"`
	Lifecycle lifecycle.StatusCodes   `yaml:"lifecycle"`
	Rules     []trigger.RuleConfig    `yaml:"rules"`
	Defaults  []trigger.DefaultConfig `yaml:"defaults"`
	Logging   zeroconfig.Config       `yaml:"logging"`
}

// StateConfig locates the persisted session.
type StateConfig struct {
	Path string `yaml:"path"`
}

// DispatchConfig holds the dispatch policies.
type DispatchConfig struct {
	ImagePolicy   dispatch.ImagePolicy   `yaml:"image_policy"`
	FailurePolicy dispatch.FailurePolicy `yaml:"failure_policy"`
}

// Options returns the dispatcher options for the configured policies.
func (dc DispatchConfig) Options() []dispatch.Option {
	return []dispatch.Option{
		dispatch.WithImagePolicy(dc.ImagePolicy),
		dispatch.WithFailurePolicy(dc.FailurePolicy),
	}
}

func upgradeConfig(helper up.Helper) {
	connector.UpgradeConfig(helper)
	helper.Copy(up.Str, "state", "path")
	helper.Copy(up.Str, "dispatch", "image_policy")
	helper.Copy(up.Str, "dispatch", "failure_policy")
	helper.Copy(up.Int, "lifecycle", "unauthorized")
	helper.Copy(up.Int, "lifecycle", "logged_out")
	helper.Copy(up.List, "rules")
	helper.Copy(up.List, "defaults")
	helper.Copy(up.Map, "logging")
}

// Upgrader merges a user config onto ExampleConfig, so keys missing from the
// user's file keep their example values.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: upgradeConfig,
	Blocks: [][]string{
		{"mattermost"},
		{"matrix"},
		{"state"},
		{"dispatch"},
		{"lifecycle"},
		{"logging"},
	},
	Base: ExampleConfig,
}

// Load reads the config at path merged onto the example config. A missing
// file yields the example config. The file itself is never rewritten.
func Load(path string) (*Config, error) {
	data := []byte(ExampleConfig)
	if _, err := os.Stat(path); err == nil {
		data, _, err = up.Do(path, false, Upgrader)
		if err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and post-processes a complete config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess applies environment overrides and defaults and validates the
// policies. Network settings are validated by connector.New, so replay mode
// works without any.
func (c *Config) PostProcess() error {
	c.applyEnv(os.Getenv)

	if c.State.Path == "" {
		c.State.Path = credstore.DefaultDir
	}
	if c.Lifecycle == (lifecycle.StatusCodes{}) {
		c.Lifecycle = lifecycle.DefaultStatusCodes
	}

	var err error
	if c.Dispatch.ImagePolicy, err = dispatch.ParseImagePolicy(string(c.Dispatch.ImagePolicy)); err != nil {
		return fmt.Errorf("dispatch.image_policy: %w", err)
	}
	if c.Dispatch.FailurePolicy, err = dispatch.ParseFailurePolicy(string(c.Dispatch.FailurePolicy)); err != nil {
		return fmt.Errorf("dispatch.failure_policy: %w", err)
	}
	if c.Lifecycle.Unauthorized != 0 && c.Lifecycle.Unauthorized == c.Lifecycle.LoggedOut {
		return fmt.Errorf("lifecycle: unauthorized and logged_out share status %d", c.Lifecycle.Unauthorized)
	}
	return nil
}

// applyEnv fills secrets of the selected network from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	token, password := getenv(EnvToken), getenv(EnvPassword)
	switch strings.ToLower(strings.TrimSpace(c.Connector.Network)) {
	case connector.NetworkMatrix:
		if token != "" {
			c.Connector.Matrix.AccessToken = token
		}
		if password != "" {
			c.Connector.Matrix.Password = password
		}
	default:
		if token != "" {
			c.Connector.Mattermost.Token = token
		}
		if password != "" {
			c.Connector.Mattermost.Password = password
		}
	}
}

// Logger compiles the logging section.
func (c *Config) Logger() (*zerolog.Logger, error) {
	log, err := c.Logging.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return log, nil
}

// Copyright 2024-2026 Aiku AI

package connector

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

// Network names accepted in the config.
const (
	NetworkMattermost = "mattermost"
	NetworkMatrix     = "matrix"
)

// DefaultMaxImageSize caps the size of images fetched for image replies.
const DefaultMaxImageSize = 100 * 1024 * 1024

// Config selects the network and holds the settings of each.
type Config struct {
	Network      string           `yaml:"network"`
	MaxImageSize int64            `yaml:"max_image_size"`
	Mattermost   MattermostConfig `yaml:"mattermost"`
	Matrix       MatrixConfig     `yaml:"matrix"`
}

// MattermostConfig holds the Mattermost login settings.
type MattermostConfig struct {
	ServerURL string `yaml:"server_url"`
	// Token is a personal access token. It takes precedence over
	// Username and Password.
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// BotPrefix is a username prefix for echo prevention. Any Mattermost
	// username starting with this prefix is treated as another bot and its
	// posts are ignored. Leave empty to disable prefix-based filtering.
	BotPrefix string `yaml:"bot_prefix"`
}

// MatrixConfig holds the Matrix login settings.
type MatrixConfig struct {
	HomeserverURL string `yaml:"homeserver_url"`
	UserID        string `yaml:"user_id"`
	AccessToken   string `yaml:"access_token"`
	Password      string `yaml:"password"`
	DeviceName    string `yaml:"device_name"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess normalizes and validates the config.
func (c *Config) PostProcess() error {
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	if c.Network == "" {
		c.Network = NetworkMattermost
	}
	if c.MaxImageSize <= 0 {
		c.MaxImageSize = DefaultMaxImageSize
	}
	c.Mattermost.ServerURL = strings.TrimRight(c.Mattermost.ServerURL, "/")
	c.Matrix.HomeserverURL = strings.TrimRight(c.Matrix.HomeserverURL, "/")

	switch c.Network {
	case NetworkMattermost:
		return c.Mattermost.validate()
	case NetworkMatrix:
		return c.Matrix.validate()
	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}
}

func (c *MattermostConfig) validate() error {
	if err := validateURL("mattermost.server_url", c.ServerURL); err != nil {
		return err
	}
	if c.Token == "" && (c.Username == "" || c.Password == "") {
		return errors.New("mattermost: either token or username and password must be set")
	}
	return nil
}

func (c *MatrixConfig) validate() error {
	if err := validateURL("matrix.homeserver_url", c.HomeserverURL); err != nil {
		return err
	}
	if c.AccessToken == "" && (c.UserID == "" || c.Password == "") {
		return errors.New("matrix: either access_token or user_id and password must be set")
	}
	return nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s must be set", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", key, u.Scheme)
	}
	return nil
}

// UpgradeConfig copies the connector keys from the user's config onto the
// base config.
func UpgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "network")
	helper.Copy(up.Int, "max_image_size")
	helper.Copy(up.Str, "mattermost", "server_url")
	helper.Copy(up.Str, "mattermost", "token")
	helper.Copy(up.Str, "mattermost", "username")
	helper.Copy(up.Str, "mattermost", "password")
	helper.Copy(up.Str, "mattermost", "bot_prefix")
	helper.Copy(up.Str, "matrix", "homeserver_url")
	helper.Copy(up.Str, "matrix", "user_id")
	helper.Copy(up.Str, "matrix", "access_token")
	helper.Copy(up.Str, "matrix", "password")
	helper.Copy(up.Str, "matrix", "device_name")
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devilmonastery/jobboard/internal/client"
	"github.com/devilmonastery/jobboard/internal/notifications"
)

const (
	defaultStreamPath = "/notifications/stream"
	defaultTimeout    = 30 * time.Second

	// configEnvVar overrides the config file location
	configEnvVar = "JOBBOARD_CONFIG"
)

// Context represents a named configuration context (like kubectl contexts)
type Context struct {
	API struct {
		BaseURL     string        `yaml:"base_url"`
		RefreshPath string        `yaml:"refresh_path,omitempty"`
		LoginPath   string        `yaml:"login_path,omitempty"`
		LogoutPath  string        `yaml:"logout_path,omitempty"`
		StreamPath  string        `yaml:"stream_path,omitempty"`
		Timeout     time.Duration `yaml:"timeout,omitempty"`
	} `yaml:"api"`
	Web struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"web"`
	Notifications struct {
		MaxRecent int `yaml:"max_recent,omitempty"`
	} `yaml:"notifications"`
	Rendering struct {
		Theme string `yaml:"theme"`
	} `yaml:"rendering"`
}

// Config represents the CLI configuration with multiple contexts
type Config struct {
	CurrentContext string              `yaml:"current-context"`
	Contexts       map[string]*Context `yaml:"contexts"`
}

// DefaultConfig returns the default configuration with "dev" and "prod" contexts
func DefaultConfig() *Config {
	devContext := &Context{}
	devContext.API.BaseURL = "http://localhost:8080/api"
	devContext.API.Timeout = defaultTimeout
	devContext.Web.BaseURL = "http://localhost:3000"
	devContext.Notifications.MaxRecent = notifications.DefaultMaxRecent
	devContext.Rendering.Theme = "auto"

	prodContext := &Context{}
	prodContext.API.BaseURL = "https://api.jobboard.example.com/api"
	prodContext.API.Timeout = defaultTimeout
	prodContext.Web.BaseURL = "https://jobboard.example.com"
	prodContext.Notifications.MaxRecent = notifications.DefaultMaxRecent
	prodContext.Rendering.Theme = "auto"

	return &Config{
		CurrentContext: "dev",
		Contexts: map[string]*Context{
			"dev":  devContext,
			"prod": prodContext,
		},
	}
}

// GetCurrentContext returns the current active context
func (c *Config) GetCurrentContext() (*Context, error) {
	return c.GetContext(c.CurrentContext)
}

// GetContext returns a named context
func (c *Config) GetContext(name string) (*Context, error) {
	if name == "" {
		return nil, fmt.Errorf("no current context set")
	}

	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}

	return ctx, nil
}

// SetCurrentContext sets the current active context
func (c *Config) SetCurrentContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q does not exist", name)
	}
	c.CurrentContext = name
	return nil
}

// AddContext adds or updates a context
func (c *Config) AddContext(name string, ctx *Context) {
	if c.Contexts == nil {
		c.Contexts = make(map[string]*Context)
	}
	c.Contexts[name] = ctx
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if name == c.CurrentContext {
		return fmt.Errorf("cannot delete current context %q", name)
	}
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q does not exist", name)
	}
	delete(c.Contexts, name)
	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	if p := os.Getenv(configEnvVar); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".jobboard"), nil
}

// LoadConfig loads configuration from ~/.jobboard, creating it with defaults
// on first use. ${VAR} references are expanded from the environment.
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	// If config file doesn't exist, create it with defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		defaultConfig := DefaultConfig()
		if err := SaveConfig(defaultConfig); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return defaultConfig, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure we have a valid current context
	if config.CurrentContext == "" && len(config.Contexts) > 0 {
		for name := range config.Contexts {
			config.CurrentContext = name
			break
		}
	}

	return &config, nil
}

// SaveConfig saves configuration to ~/.jobboard
func SaveConfig(config *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the fields a client needs
func (ctx *Context) Validate() error {
	if ctx.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is not set")
	}
	if ctx.Notifications.MaxRecent < 0 {
		return fmt.Errorf("notifications.max_recent must not be negative")
	}
	return nil
}

// ClientConfig builds the API client configuration for this context
func (ctx *Context) ClientConfig(store client.TokenStore) client.Config {
	return client.Config{
		BaseURL:     ctx.API.BaseURL,
		RefreshPath: ctx.API.RefreshPath,
		LoginPath:   ctx.API.LoginPath,
		LogoutPath:  ctx.API.LogoutPath,
		Store:       store,
	}
}

// Timeout returns the request timeout, defaulting to 30s
func (ctx *Context) Timeout() time.Duration {
	if ctx.API.Timeout <= 0 {
		return defaultTimeout
	}
	return ctx.API.Timeout
}

// StreamPath returns the notification stream path
func (ctx *Context) StreamPath() string {
	if ctx.API.StreamPath == "" {
		return defaultStreamPath
	}
	return ctx.API.StreamPath
}

// MaxRecent returns the bound on the recent-notification list
func (ctx *Context) MaxRecent() int {
	if ctx.Notifications.MaxRecent <= 0 {
		return notifications.DefaultMaxRecent
	}
	return ctx.Notifications.MaxRecent
}

// Theme returns the glamour theme, defaulting to "auto"
func (ctx *Context) Theme() string {
	if ctx == nil || ctx.Rendering.Theme == "" {
		return "auto"
	}
	return ctx.Rendering.Theme
}

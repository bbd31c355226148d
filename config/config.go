package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"agentchat/typewriter"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type TypewriterConfig struct {
	Threshold  int `toml:"threshold"`
	Slice      int `toml:"slice"`
	IntervalMS int `toml:"interval_ms"`
}

type SecurityConfig struct {
	CredentialsStorage SecurityMethod `toml:"credentials_storage"`
	SSHKeyPath         string         `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	DefaultAgent string             `toml:"default_agent"`
	User         string             `toml:"user"`
	BaseURL      string             `toml:"base_url,omitempty"`
	Typewriter   TypewriterConfig   `toml:"typewriter"`
	Security     SecurityConfig     `toml:"security"`
	Providers    []ProviderConfig   `toml:"providers,omitempty"`
	Agents       []AgentConfig      `toml:"agents,omitempty"`
	Tools        []ToolServerConfig `toml:"tools,omitempty"`
}

type Config struct {
	DataDirectory   string
	DefaultAgent    string
	User            string
	BaseURL         string
	Typewriter      TypewriterConfig
	Security        SecurityConfig
	Providers       []ProviderConfig
	Agents          []AgentConfig
	Tools           []ToolServerConfig
	CredentialStore *CredentialStore
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// TypewriterOptions converts the [typewriter] table. Unset values fall back
// to the scheduler defaults.
func (c *Config) TypewriterOptions() typewriter.Options {
	return typewriter.Options{
		Threshold: c.Typewriter.Threshold,
		Slice:     c.Typewriter.Slice,
		Interval:  time.Duration(c.Typewriter.IntervalMS) * time.Millisecond,
	}
}

func (c *Config) applyUserConfig(u *UserConfig) {
	c.DefaultAgent = u.DefaultAgent
	c.User = u.User
	c.BaseURL = u.BaseURL
	c.Typewriter = u.Typewriter
	c.Security = u.Security
	c.Providers = u.Providers
	c.Agents = u.Agents
	c.Tools = u.Tools
}

func (c *Config) applyEnvOverrides() {
	if baseURL := os.Getenv("AGENTCHAT_BASE_URL"); baseURL != "" {
		c.BaseURL = baseURL
	}
	if agent := os.Getenv("AGENTCHAT_AGENT"); agent != "" {
		c.DefaultAgent = agent
	}
	if dataDir := os.Getenv("AGENTCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

func CheckDebug() bool {
	debug := os.Getenv("AGENTCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := debugLogPath(dataDir)

	// 0600: request payloads and tool output end up in here
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (AGENTCHAT_DEBUG=%s) ===", os.Getenv("AGENTCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads settings.toml and the user config it points at, then applies
// environment overrides. Credentials are not loaded; see LoadCredentials.
func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory: GetDefaultDataDir(),
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory

	// The data dir override must win before the user config is located.
	if dataDir := os.Getenv("AGENTCHAT_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	userCfg, err := LoadUserConfig(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()

	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	if cfg.Security.CredentialsStorage == "" {
		cfg.Security.CredentialsStorage = SecurityPlainText
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	if cfg.Security.CredentialsStorage == SecuritySSHKey && cfg.Security.SSHKeyPath == "" {
		keys, err := FindSSHKeys()
		if err != nil || len(keys) == 0 {
			return nil, fmt.Errorf("credentials_storage is ssh_key but no usable SSH key was found")
		}
		cfg.Security.SSHKeyPath = keys[0]
	}

	cfg.CredentialStore = NewCredentialStore(cfg.Security.CredentialsStorage, ExpandPath(cfg.Security.SSHKeyPath))
	return cfg, nil
}

// LoadCredentials decrypts or reads the credential file. passphrase is only
// needed for encrypted SSH keys.
func (c *Config) LoadCredentials(passphrase string) error {
	if c.CredentialStore == nil {
		c.CredentialStore = NewCredentialStore(c.Security.CredentialsStorage, ExpandPath(c.Security.SSHKeyPath))
	}
	if passphrase != "" {
		c.CredentialStore.SetPassphrase(passphrase)
	}
	if err := c.CredentialStore.Load(c.DataDir()); err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	return nil
}

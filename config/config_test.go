package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("AGENTCHAT_DATA_DIR", "")
	t.Setenv("AGENTCHAT_AGENT", "")
	t.Setenv("AGENTCHAT_BASE_URL", "")
	return home
}

func TestLoadCreatesDefaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(home, ".config", "agentchat", "settings.toml"))
	assert.FileExists(t, filepath.Join(cfg.DataDir(), "config.toml"))
	assert.Equal(t, DefaultUser, cfg.User)
	assert.Equal(t, SecurityPlainText, cfg.Security.CredentialsStorage)
	assert.NotNil(t, cfg.CredentialStore)

	info, err := os.Stat(cfg.DataDir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestLoadUserConfigAndOverrides(t *testing.T) {
	isolateHome(t)
	dataDir := t.TempDir()
	t.Setenv("AGENTCHAT_DATA_DIR", dataDir)
	t.Setenv("AGENTCHAT_BASE_URL", "http://override.local/v1")

	userCfg := `
default_agent = "local"
user = "tester"

[typewriter]
threshold = 50
slice = 5
interval_ms = 10

[[agents]]
id = "remote"
kind = "remote"

[[agents]]
id = "local"
name = "Local"
kind = "local"
provider = "ollama"
model = "llama3.1:latest"
tools = ["fs"]

[[tools]]
id = "fs"
command = "mcp-fs"
args = ["/tmp"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(userCfg), 0600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tester", cfg.User)
	assert.Equal(t, "http://override.local/v1", cfg.BaseURL)

	start, err := cfg.StartAgent()
	require.NoError(t, err)
	assert.Equal(t, "local", start.ID)
	assert.True(t, start.IsLocal())

	remote, ok := cfg.Agent("remote")
	require.True(t, ok)
	assert.Equal(t, "http://override.local/v1", cfg.AgentBaseURL(remote))
	assert.Equal(t, "remote", remote.DisplayName())

	servers := cfg.ToolServers(start)
	require.Len(t, servers, 1)
	assert.Equal(t, "mcp-fs", servers[0].Command)

	opts := cfg.TypewriterOptions()
	assert.Equal(t, 50, opts.Threshold)
	assert.Equal(t, 5, opts.Slice)
	assert.Equal(t, 10*time.Millisecond, opts.Interval)
}

func TestAgentEnvOverride(t *testing.T) {
	isolateHome(t)
	dataDir := t.TempDir()
	t.Setenv("AGENTCHAT_DATA_DIR", dataDir)
	t.Setenv("AGENTCHAT_AGENT", "b")

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(`
default_agent = "a"
[[agents]]
id = "a"
[[agents]]
id = "b"
`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	start, err := cfg.StartAgent()
	require.NoError(t, err)
	assert.Equal(t, "b", start.ID)
}

func TestAgentValidate(t *testing.T) {
	tests := []struct {
		name    string
		agent   AgentConfig
		wantErr bool
	}{
		{"remote", AgentConfig{ID: "a", Kind: AgentRemote}, false},
		{"kind defaults to remote", AgentConfig{ID: "a"}, false},
		{"missing id", AgentConfig{Kind: AgentRemote}, true},
		{"local without provider", AgentConfig{ID: "a", Kind: AgentLocal, Model: "m"}, true},
		{"local without model", AgentConfig{ID: "a", Kind: AgentLocal, Provider: "ollama"}, true},
		{"local", AgentConfig{ID: "a", Kind: AgentLocal, Provider: "ollama", Model: "m"}, false},
		{"unknown kind", AgentConfig{ID: "a", Kind: "websocket"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.agent.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUserConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "duplicate agent",
			config:  "[[agents]]\nid = \"a\"\n[[agents]]\nid = \"a\"\n",
			wantErr: "defined twice",
		},
		{
			name:    "unknown tool server",
			config:  "[[agents]]\nid = \"a\"\ntools = [\"missing\"]\n",
			wantErr: "unknown tool server",
		},
		{
			name:    "duplicate input",
			config:  "[[agents]]\nid = \"a\"\n[[agents.inputs]]\nvariable = \"city\"\n[[agents.inputs]]\nvariable = \"city\"\n",
			wantErr: "input variables",
		},
		{
			name:   "valid",
			config: "[[agents]]\nid = \"a\"\ntools = [\"fs\"]\n[[agents.inputs]]\nvariable = \"city\"\n[[tools]]\nid = \"fs\"\ncommand = \"mcp-fs\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(tt.config), 0600))

			_, err := LoadUserConfig(dataDir)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStartAgentWithoutAgents(t *testing.T) {
	cfg := &Config{DataDirectory: t.TempDir()}
	_, err := cfg.StartAgent()
	assert.Error(t, err)
}

func TestPlainTextCredentials(t *testing.T) {
	dataDir := t.TempDir()

	store := NewCredentialStore(SecurityPlainText, "")
	store.Set("support", "app-123")
	require.NoError(t, store.Save(dataDir))

	info, err := os.Stat(filepath.Join(dataDir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, loaded.Load(dataDir))

	token, err := loaded.TokenFor("support")
	require.NoError(t, err)
	assert.Equal(t, "app-123", token)

	_, err = loaded.TokenFor("unknown")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func writeTestKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestSSHEncryptedCredentials(t *testing.T) {
	dataDir := t.TempDir()
	keyPath := writeTestKey(t, "")

	store := NewCredentialStore(SecuritySSHKey, keyPath)
	store.Set("openai", "sk-secret")
	require.NoError(t, store.Save(dataDir))

	raw, err := os.ReadFile(filepath.Join(dataDir, "credentials.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-secret")

	loaded := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, loaded.Load(dataDir))
	assert.Equal(t, "sk-secret", loaded.Get("openai"))
}

func TestEncryptedKeyNeedsPassphrase(t *testing.T) {
	keyPath := writeTestKey(t, "hunter2")

	encrypted, err := IsSSHKeyEncrypted(keyPath)
	require.NoError(t, err)
	assert.True(t, encrypted)

	_, err = newCredentialCipher(keyPath, "")
	assert.ErrorIs(t, err, ErrPassphraseRequired)

	_, err = newCredentialCipher(keyPath, "wrong")
	assert.Error(t, err)

	cc, err := newCredentialCipher(keyPath, "hunter2")
	require.NoError(t, err)

	sealed, err := cc.seal([]byte("payload"))
	require.NoError(t, err)
	opened, err := cc.open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(opened))

	// A different key cannot open the file.
	other, err := newCredentialCipher(writeTestKey(t, ""), "")
	require.NoError(t, err)
	_, err = other.open(sealed)
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home := isolateHome(t)
	assert.Equal(t, filepath.Join(home, "data"), ExpandPath("~/data"))
	assert.Equal(t, "", ExpandPath(""))
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Layout of a data directory:
//
//	config.toml        user config (agents, providers, tools)
//	credentials.toml   plain text credentials, or
//	credentials.enc    credentials sealed with an SSH key
//	runs.db            generation run log
//	debug.log          written when AGENTCHAT_DEBUG is set
//	agents/<id>/       conversations of a local agent

// GetConfigDir returns ~/.config/agentchat, where settings.toml lives.
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", "agentchat")
}

// GetDefaultDataDir returns the platform default data directory:
// ~/.local/share/agentchat, or %LOCALAPPDATA%\agentchat on Windows.
func GetDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "agentchat")
		}
		return filepath.Join(GetHomeDir(), "AppData", "Local", "agentchat")
	}
	return filepath.Join(GetHomeDir(), ".local", "share", "agentchat")
}

func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

func UserConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

func debugLogPath(dataDir string) string {
	return filepath.Join(dataDir, "debug.log")
}

// AgentDataDir returns where a local agent keeps its conversations. Path
// separators in the id are replaced so an id cannot leave agents/.
func AgentDataDir(dataDir, agentID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(agentID)
	return filepath.Join(dataDir, "agents", safe)
}

// GetHomeDir returns the user's home directory, "/" if unknown.
func GetHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return string(filepath.Separator)
}

// ExpandPath expands a leading ~/ and environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		path = filepath.Join(GetHomeDir(), rest)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates a user-only directory.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates dataDir or tightens it to 0700; it holds
// credentials and conversation history.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dataDir, 0700)
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}

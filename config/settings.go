package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
)

// LoadSystemConfig reads settings.toml, writing the template on first run.
func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	settingsPath := GetSettingsFilePath()

	if !FileExists(settingsPath) {
		if err := CreateDefaultSystemConfig(); err != nil {
			return nil, fmt.Errorf("failed to create system config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(settingsPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = DefaultSystemConfig().DataDirectory
	}
	return cfg, nil
}

// LoadUserConfig reads config.toml from dataDir, writing the template on
// first run, and rejects agent definitions that cannot work.
func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	userConfigPath := UserConfigPath(dataDir)

	if !FileExists(userConfigPath) {
		if err := CreateDefaultUserConfig(dataDir); err != nil {
			return nil, fmt.Errorf("failed to create user config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(userConfigPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", userConfigPath, err)
	}
	return cfg, nil
}

func (u *UserConfig) validate() error {
	seen := map[string]bool{}
	for _, a := range u.Agents {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.ID] {
			return fmt.Errorf("agent %q is defined twice", a.ID)
		}
		seen[a.ID] = true

		for _, toolID := range a.Tools {
			if !slices.ContainsFunc(u.Tools, func(t ToolServerConfig) bool { return t.ID == toolID }) {
				return fmt.Errorf("agent %q uses unknown tool server %q", a.ID, toolID)
			}
		}

		vars := map[string]bool{}
		for _, in := range a.Inputs {
			if in.Variable == "" || vars[in.Variable] {
				return fmt.Errorf("agent %q: input variables must be unique and non-empty", a.ID)
			}
			vars[in.Variable] = true
		}
	}
	return nil
}

func CreateDefaultSystemConfig() error {
	return writeTemplate(GetSettingsFilePath(), GenerateSystemConfigTemplate())
}

func CreateDefaultUserConfig(dataDir string) error {
	return writeTemplate(UserConfigPath(dataDir), GenerateUserConfigTemplate())
}

// writeTemplate writes a commented config template unless path exists.
func writeTemplate(path, content string) error {
	if FileExists(path) {
		return nil
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

package config

// DefaultUser identifies this client to the agent platform when no user is
// configured.
const DefaultUser = "agentchat-user"

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/agentchat",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		User: DefaultUser,
		Typewriter: TypewriterConfig{
			Threshold:  100,
			Slice:      10,
			IntervalMS: 20,
		},
		Security: SecurityConfig{
			CredentialsStorage: SecurityPlainText,
		},
	}
}

// DefaultProviderBaseURL returns the stock endpoint of a provider.
func DefaultProviderBaseURL(providerID string) string {
	switch providerID {
	case "ollama":
		return "http://localhost:11434"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "anthropic":
		return "https://api.anthropic.com"
	case "openai":
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}

func GenerateSystemConfigTemplate() string {
	return `# agentchat System Configuration
# Location: ~/.config/agentchat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations, credentials and the user config are stored
data_directory = "~/.local/share/agentchat"
`
}

func GenerateUserConfigTemplate() string {
	return `# agentchat User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Agent opened on launch
default_agent = ""

# End-user identifier sent to the agent platform
user = "agentchat-user"

# Fallback endpoint for remote agents without their own base_url
# base_url = "http://localhost/v1"

[typewriter]
# Increments of at least this many characters are revealed gradually
threshold = 100
slice = 10
interval_ms = 20

[security]
# "plaintext" or "ssh_key"
credentials_storage = "plaintext"
# ssh_key_path = "~/.ssh/id_ed25519"

# Remote agent (API key goes in credentials under the agent id):
# [[agents]]
# id = "support"
# name = "Support Bot"
# kind = "remote"
# base_url = "https://api.dify.ai/v1"

# Local agent backed by an LLM provider:
# [[agents]]
# id = "local"
# name = "Local Assistant"
# kind = "local"
# provider = "ollama"
# model = "llama3.1:latest"
# system_prompt = "You are a helpful assistant."
# opening_statement = "Hi! How can I help?"
# suggested_questions = ["What can you do?"]
# tools = ["fs"]
#
# [[agents.inputs]]
# variable = "language"
# label = "Reply language"
# type = "select"
# options = ["English", "German"]
# required = true

# [[providers]]
# id = "ollama"
# enabled = true
# base_url = "http://localhost:11434"
#
# A second endpoint of the same kind needs its own id and a type:
# [[providers]]
# id = "azure-gpt"
# type = "openai"
# enabled = true
# base_url = "https://example.openai.azure.com/openai/v1"

# MCP tool servers for local agents:
# [[tools]]
# id = "fs"
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
`
}

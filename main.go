package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"agentchat/config"
	"agentchat/model"
	"agentchat/storage"
	"agentchat/ui"
)

const Version = "v0.1.0"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println("agentchat", Version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		showError("Configuration Error", err.Error())
		os.Exit(1)
	}

	config.InitDebugLog(cfg.DataDir())
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Main] agentchat %s starting, data dir %s", Version, cfg.DataDir())
	}

	passphrase, ok := askPassphrase(cfg)
	if !ok {
		os.Exit(0)
	}
	if err := cfg.LoadCredentials(passphrase); err != nil {
		showError("Credentials Error", err.Error())
		os.Exit(1)
	}

	start, err := cfg.StartAgent()
	if err != nil {
		showError("No Agent Configured", fmt.Sprintf("%v\n\nAdd an [[agents]] entry and restart agentchat.", err))
		os.Exit(1)
	}

	runs, err := storage.NewRunLog(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to open run log: %v\n", err)
		os.Exit(1)
	}

	// Runs still marked running were cut off by a previous exit.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if n, err := runs.MarkInterrupted(ctx); err == nil && n > 0 && config.DebugLog != nil {
		config.DebugLog.Printf("[Main] Marked %d interrupted runs", n)
	}
	cancel()

	agents := newAgentRegistry(cfg, runs)
	code := runChat(cfg, agents, start)
	agents.Close()
	runs.Close()
	os.Exit(code)
}

// runChat opens the start agent and runs the chat until the user quits.
func runChat(cfg *config.Config, agents *agentRegistry, start config.AgentConfig) int {
	svc, startCmd, err := agents.Connect(start)
	if err != nil {
		showError("Agent Error", err.Error())
		return 1
	}

	session := model.NewModel(start.ID, svc, cfg.User, cfg.TypewriterOptions())
	view := ui.NewChatView(session, cfg.Agents, agents.Connect).WithStartupCmd(startCmd)

	p := tea.NewProgram(view, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running agentchat: %v\n", err)
		return 1
	}
	return 0
}

// askPassphrase prompts for the SSH key passphrase when the credential file
// is encrypted with a passphrase-protected key. ok is false if the user
// cancelled.
func askPassphrase(cfg *config.Config) (passphrase string, ok bool) {
	if cfg.Security.CredentialsStorage != config.SecuritySSHKey {
		return "", true
	}

	keyPath := config.ExpandPath(cfg.Security.SSHKeyPath)
	encrypted, err := config.IsSSHKeyEncrypted(keyPath)
	if err != nil || !encrypted {
		return "", true
	}

	final, err := tea.NewProgram(ui.NewPassphraseModal(keyPath), tea.WithAltScreen()).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return "", false
	}
	pm, isModal := final.(ui.PassphraseModal)
	if !isModal || pm.Cancelled() {
		return "", false
	}
	return pm.Passphrase(), true
}

func showError(title, message string) {
	p := tea.NewProgram(ui.NewErrorModal(title, message), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
	}
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentchat/transcript"
)

// ErrNotFound is returned for unknown conversation ids.
var ErrNotFound = errors.New("conversation not found")

// Conversation is a locally persisted conversation of a local agent
type Conversation struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Inputs    map[string]any       `json:"inputs,omitempty"`
	Messages  []transcript.Message `json:"messages"`
}

// ConversationMetadata is a lightweight version of Conversation for listing
type ConversationMetadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ConversationStorage keeps one JSON file per conversation. It is safe for
// concurrent use.
type ConversationStorage struct {
	mu  sync.Mutex
	dir string
}

// NewConversationStorage creates <dir>/conversations if needed
func NewConversationStorage(dir string) (*ConversationStorage, error) {
	convDir := filepath.Join(dir, "conversations")

	if err := os.MkdirAll(convDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}

	return &ConversationStorage{dir: convDir}, nil
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

func (s *ConversationStorage) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes a conversation to disk, assigning an id and timestamps when
// missing
func (s *ConversationStorage) Save(conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(conv)
}

func (s *ConversationStorage) save(conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	// 0600: conversation files contain the full chat history
	if err := os.WriteFile(s.path(conv.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	return nil
}

// Load reads a conversation from disk
func (s *ConversationStorage) Load(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *ConversationStorage) load(id string) (*Conversation, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}

	return &conv, nil
}

// Update loads a conversation, applies fn and saves the result under one
// lock.
func (s *ConversationStorage) Update(id string, fn func(conv *Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(id)
	if err != nil {
		return err
	}
	fn(conv)
	return s.save(conv)
}

// List returns metadata for all conversations, newest first
func (s *ConversationStorage) List() ([]ConversationMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	var convs []ConversationMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}

		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue // Skip corrupted files
		}

		convs = append(convs, ConversationMetadata{
			ID:           conv.ID,
			Name:         conv.Name,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
		})
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	return convs, nil
}

// Delete removes a conversation from disk
func (s *ConversationStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete conversation file: %w", err)
	}

	return nil
}

// GenerateConversationName derives a title from the first user message
func GenerateConversationName(firstMessage string) string {
	name := strings.Join(strings.Fields(firstMessage), " ")
	if name == "" {
		return fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2, 3:04 PM"))
	}

	// Take first 30 characters
	if runes := []rune(name); len(runes) > 30 {
		name = string(runes[:30]) + "..."
	}

	return name
}

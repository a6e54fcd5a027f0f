// Package api wraps the backend's CRUD endpoints in typed services.
package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/omochice/quill/internal/rest"
)

// API groups the resource services sharing one request client.
type API struct {
	Works          *WorksService
	Documents      *DocumentsService
	KnowledgeBases *KnowledgeService
	Memories       *MemoriesService
	Agents         *AgentsService
	Plugins        *PluginsService
}

// New creates the services on top of c.
func New(c *rest.Client) *API {
	return &API{
		Works:          &WorksService{client: c},
		Documents:      &DocumentsService{client: c},
		KnowledgeBases: &KnowledgeService{client: c},
		Memories:       &MemoriesService{client: c},
		Agents:         &AgentsService{client: c},
		Plugins:        &PluginsService{client: c},
	}
}

// Work is a writing project.
type Work struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Document is a chapter or note within a work. Content is HTML produced by
// the editor and is passed through untouched.
type Document struct {
	ID        string    `json:"id"`
	WorkID    string    `json:"work_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentVersion is a saved revision of a document.
type DocumentVersion struct {
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeBase is a reference entry (character, setting, ...) of a work.
type KnowledgeBase struct {
	ID       string `json:"id"`
	WorkID   string `json:"work_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Content  string `json:"content"`
}

// Memory is a fact the assistant keeps about a work.
type Memory struct {
	ID      string   `json:"id"`
	WorkID  string   `json:"work_id"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// Agent is a configured assistant.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AgentSession identifies a streaming session opened for an agent.
type AgentSession struct {
	SessionID string `json:"session_id"`
}

// Plugin is an optional backend capability.
type Plugin struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// path joins escaped segments into a request path.
func path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

func requireID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s id is required", kind)
	}
	return nil
}

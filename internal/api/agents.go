package api

import (
	"context"
	"errors"

	"github.com/omochice/quill/internal/rest"
)

// AgentsService lists agents and opens streaming sessions for them.
type AgentsService struct {
	client *rest.Client
}

// List returns the available agents.
func (s *AgentsService) List(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := s.client.Get(ctx, path("agents"), &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// CreateSession opens a session for agentID, optionally scoped to a work,
// and returns the session ID to stream on.
func (s *AgentsService) CreateSession(ctx context.Context, agentID, workID string) (string, error) {
	if err := requireID("agent", agentID); err != nil {
		return "", err
	}
	body := map[string]string{}
	if workID != "" {
		body["work_id"] = workID
	}
	var out AgentSession
	if err := s.client.Post(ctx, path("agents", agentID, "sessions"), body, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", errors.New("backend returned no session id")
	}
	return out.SessionID, nil
}

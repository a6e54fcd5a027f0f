package api

import (
	"context"

	"github.com/omochice/quill/internal/rest"
)

// MemoriesService manages assistant memories.
type MemoriesService struct {
	client *rest.Client
}

// List returns the memories of a work.
func (s *MemoriesService) List(ctx context.Context, workID string) ([]Memory, error) {
	if err := requireID("work", workID); err != nil {
		return nil, err
	}
	var memories []Memory
	if err := s.client.Get(ctx, path("works", workID, "memories"), &memories); err != nil {
		return nil, err
	}
	return memories, nil
}

// Create stores a memory.
func (s *MemoriesService) Create(ctx context.Context, m Memory) (*Memory, error) {
	if err := requireID("work", m.WorkID); err != nil {
		return nil, err
	}
	var out Memory
	if err := s.client.Post(ctx, path("works", m.WorkID, "memories"), m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete forgets a memory.
func (s *MemoriesService) Delete(ctx context.Context, id string) error {
	if err := requireID("memory", id); err != nil {
		return err
	}
	return s.client.Delete(ctx, path("memories", id), nil)
}

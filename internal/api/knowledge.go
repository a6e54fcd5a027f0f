package api

import (
	"context"

	"github.com/omochice/quill/internal/rest"
)

// KnowledgeService manages knowledge base entries.
type KnowledgeService struct {
	client *rest.Client
}

// List returns the entries of a work.
func (s *KnowledgeService) List(ctx context.Context, workID string) ([]KnowledgeBase, error) {
	if err := requireID("work", workID); err != nil {
		return nil, err
	}
	var entries []KnowledgeBase
	if err := s.client.Get(ctx, path("works", workID, "knowledge"), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Create adds an entry.
func (s *KnowledgeService) Create(ctx context.Context, kb KnowledgeBase) (*KnowledgeBase, error) {
	if err := requireID("work", kb.WorkID); err != nil {
		return nil, err
	}
	var out KnowledgeBase
	if err := s.client.Post(ctx, path("works", kb.WorkID, "knowledge"), kb, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces an entry.
func (s *KnowledgeService) Update(ctx context.Context, kb KnowledgeBase) (*KnowledgeBase, error) {
	if err := requireID("knowledge", kb.ID); err != nil {
		return nil, err
	}
	var out KnowledgeBase
	if err := s.client.Put(ctx, path("knowledge", kb.ID), kb, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an entry.
func (s *KnowledgeService) Delete(ctx context.Context, id string) error {
	if err := requireID("knowledge", id); err != nil {
		return err
	}
	return s.client.Delete(ctx, path("knowledge", id), nil)
}

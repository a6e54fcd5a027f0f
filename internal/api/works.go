package api

import (
	"context"

	"github.com/omochice/quill/internal/rest"
)

// WorksService manages works.
type WorksService struct {
	client *rest.Client
}

// List returns all works.
func (s *WorksService) List(ctx context.Context) ([]Work, error) {
	var works []Work
	if err := s.client.Get(ctx, path("works"), &works); err != nil {
		return nil, err
	}
	return works, nil
}

// Get returns one work.
func (s *WorksService) Get(ctx context.Context, id string) (*Work, error) {
	if err := requireID("work", id); err != nil {
		return nil, err
	}
	var w Work
	if err := s.client.Get(ctx, path("works", id), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Create creates a work.
func (s *WorksService) Create(ctx context.Context, title, description string) (*Work, error) {
	body := map[string]string{"title": title, "description": description}
	var w Work
	if err := s.client.Post(ctx, path("works"), body, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Update replaces a work's title and description.
func (s *WorksService) Update(ctx context.Context, w Work) (*Work, error) {
	if err := requireID("work", w.ID); err != nil {
		return nil, err
	}
	var out Work
	if err := s.client.Put(ctx, path("works", w.ID), w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a work.
func (s *WorksService) Delete(ctx context.Context, id string) error {
	if err := requireID("work", id); err != nil {
		return err
	}
	return s.client.Delete(ctx, path("works", id), nil)
}

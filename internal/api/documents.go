package api

import (
	"context"
	"strconv"

	"github.com/omochice/quill/internal/rest"
)

// DocumentsService manages documents and their versions.
type DocumentsService struct {
	client *rest.Client
}

// List returns the documents of a work.
func (s *DocumentsService) List(ctx context.Context, workID string) ([]Document, error) {
	if err := requireID("work", workID); err != nil {
		return nil, err
	}
	var docs []Document
	if err := s.client.Get(ctx, path("works", workID, "documents"), &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get returns one document.
func (s *DocumentsService) Get(ctx context.Context, id string) (*Document, error) {
	if err := requireID("document", id); err != nil {
		return nil, err
	}
	var d Document
	if err := s.client.Get(ctx, path("documents", id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create adds a document to a work.
func (s *DocumentsService) Create(ctx context.Context, workID, title string) (*Document, error) {
	if err := requireID("work", workID); err != nil {
		return nil, err
	}
	var d Document
	if err := s.client.Post(ctx, path("works", workID, "documents"), map[string]string{"title": title}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveContent stores new HTML content and returns the updated document.
func (s *DocumentsService) SaveContent(ctx context.Context, id, html string) (*Document, error) {
	if err := requireID("document", id); err != nil {
		return nil, err
	}
	var d Document
	if err := s.client.Put(ctx, path("documents", id, "content"), map[string]string{"content": html}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Rename changes a document's title.
func (s *DocumentsService) Rename(ctx context.Context, id, title string) (*Document, error) {
	if err := requireID("document", id); err != nil {
		return nil, err
	}
	var d Document
	if err := s.client.Patch(ctx, path("documents", id), map[string]string{"title": title}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Delete removes a document.
func (s *DocumentsService) Delete(ctx context.Context, id string) error {
	if err := requireID("document", id); err != nil {
		return err
	}
	return s.client.Delete(ctx, path("documents", id), nil)
}

// Versions lists saved revisions, newest first.
func (s *DocumentsService) Versions(ctx context.Context, id string) ([]DocumentVersion, error) {
	if err := requireID("document", id); err != nil {
		return nil, err
	}
	var versions []DocumentVersion
	if err := s.client.Get(ctx, path("documents", id, "versions"), &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Restore makes an old revision current.
func (s *DocumentsService) Restore(ctx context.Context, id string, version int) (*Document, error) {
	if err := requireID("document", id); err != nil {
		return nil, err
	}
	var d Document
	p := path("documents", id, "versions", strconv.Itoa(version), "restore")
	if err := s.client.Post(ctx, p, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

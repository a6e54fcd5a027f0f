package api

import (
	"context"

	"github.com/omochice/quill/internal/rest"
)

// PluginsService lists and toggles plugins.
type PluginsService struct {
	client *rest.Client
}

// List returns all plugins.
func (s *PluginsService) List(ctx context.Context) ([]Plugin, error) {
	var plugins []Plugin
	if err := s.client.Get(ctx, path("plugins"), &plugins); err != nil {
		return nil, err
	}
	return plugins, nil
}

// SetEnabled enables or disables a plugin.
func (s *PluginsService) SetEnabled(ctx context.Context, id string, enabled bool) (*Plugin, error) {
	if err := requireID("plugin", id); err != nil {
		return nil, err
	}
	action := "disable"
	if enabled {
		action = "enable"
	}
	var p Plugin
	if err := s.client.Post(ctx, path("plugins", id, action), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

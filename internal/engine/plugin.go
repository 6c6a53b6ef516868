package engine

import (
	"fmt"

	errspkg "github.com/plugflow/plugflow/internal/engine/errors"
)

// Plugin bundles the elements contributed by one statically linked plugin.
type Plugin struct {
	Name     string
	Version  string
	Elements []Spec
}

// PluginEntry is the entry point a plugin exposes; the runner calls it once
// and registers the returned elements.
type PluginEntry func() Plugin

// RegisterPlugin runs entry and registers every element it declares.
// A failing element registration aborts with the plugin named in the error.
func (b *Bank) RegisterPlugin(entry PluginEntry) error {
	plugin := entry()
	if plugin.Name == "" {
		return errspkg.ErrPluginNameEmpty
	}

	for _, spec := range plugin.Elements {
		if err := b.Register(spec); err != nil {
			return fmt.Errorf("plugflow: registering plugin %q: %w", plugin.Name, err)
		}
	}
	return nil
}

package assets

import (
	"context"

	"github.com/lanternvale/questline/internal/quest"
)

// RegistrySource serves definitions out of the YAML content registry.
type RegistrySource struct {
	Registry *quest.Registry
}

func NewRegistrySource(r *quest.Registry) *RegistrySource {
	return &RegistrySource{Registry: r}
}

func (s *RegistrySource) Fetch(ctx context.Context, questID string) (*quest.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def, ok := s.Registry.Get(questID)
	if !ok {
		return nil, nil
	}
	return def, nil
}

// FuncSource adapts a plain function into a Source. Convenient for
// tests and for host games with their own content pipeline.
type FuncSource func(ctx context.Context, questID string) (*quest.Definition, error)

func (f FuncSource) Fetch(ctx context.Context, questID string) (*quest.Definition, error) {
	return f(ctx, questID)
}

package generation

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
)

// ContextProvider supplies the narrative constraints a chapter is judged
// against. Implementations return a value the caller may not mutate.
type ContextProvider interface {
	NarrativeContext(ctx context.Context, chapterID uuid.UUID) (validation.NarrativeContext, error)
}

// StaticContextProvider serves per-chapter contexts from memory and falls
// back to Default for unknown chapters.
type StaticContextProvider struct {
	mu       sync.RWMutex
	Default  validation.NarrativeContext
	chapters map[uuid.UUID]validation.NarrativeContext
}

func NewStaticContextProvider(def validation.NarrativeContext) *StaticContextProvider {
	return &StaticContextProvider{Default: def, chapters: map[uuid.UUID]validation.NarrativeContext{}}
}

func (p *StaticContextProvider) Set(chapterID uuid.UUID, nc validation.NarrativeContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chapters == nil {
		p.chapters = map[uuid.UUID]validation.NarrativeContext{}
	}
	p.chapters[chapterID] = nc
}

func (p *StaticContextProvider) NarrativeContext(ctx context.Context, chapterID uuid.UUID) (validation.NarrativeContext, error) {
	if err := ctx.Err(); err != nil {
		return validation.NarrativeContext{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if nc, ok := p.chapters[chapterID]; ok {
		return nc, nil
	}
	return p.Default, nil
}

// contextFile is the YAML layout read by LoadContextFile. A bare
// NarrativeContext document is accepted as the default.
type contextFile struct {
	Default  *validation.NarrativeContext           `yaml:"default"`
	Chapters map[string]validation.NarrativeContext `yaml:"chapters"`
}

// ValidateContext checks the structural tags on a narrative context.
func ValidateContext(nc validation.NarrativeContext) error {
	return validate.Struct(nc)
}

// ParseNarrativeContext decodes and validates a single context document.
func ParseNarrativeContext(raw []byte) (validation.NarrativeContext, error) {
	var nc validation.NarrativeContext
	if err := yaml.Unmarshal(raw, &nc); err != nil {
		return nc, fmt.Errorf("decode narrative context: %w", err)
	}
	if err := ValidateContext(nc); err != nil {
		return nc, fmt.Errorf("invalid narrative context: %w", err)
	}
	return nc, nil
}

// LoadContextFile reads a YAML file holding either one narrative context or
// a {default, chapters: {<uuid>: ...}} map.
func LoadContextFile(path string) (*StaticContextProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}

	var f contextFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode context file %s: %w", path, err)
	}
	if f.Default == nil && len(f.Chapters) == 0 {
		nc, err := ParseNarrativeContext(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return NewStaticContextProvider(nc), nil
	}

	var def validation.NarrativeContext
	if f.Default != nil {
		def = *f.Default
	}
	if err := ValidateContext(def); err != nil {
		return nil, fmt.Errorf("%s: invalid default context: %w", path, err)
	}
	p := NewStaticContextProvider(def)
	for key, nc := range f.Chapters {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("%s: chapter key %q: %w", path, key, err)
		}
		if err := ValidateContext(nc); err != nil {
			return nil, fmt.Errorf("%s: invalid context for chapter %s: %w", path, key, err)
		}
		p.Set(id, nc)
	}
	return p, nil
}

package outbox

import (
	"context"
	"regexp"
	"strings"
	"sync"

	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// Template is one message body variant. A tenant-specific active variant
// beats the global default (empty TenantID) active variant.
type Template struct {
	ID       string
	TenantID string // empty for the global default
	Code     string // gateway template code
	Body     string
	Active   bool
}

// TemplateStore resolves template variants.
type TemplateStore interface {
	// Find returns the variants registered for a template id, any tenant.
	Find(ctx context.Context, templateID string) ([]Template, error)
}

// InMemoryTemplateStore is a map-backed template registry.
type InMemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string][]Template
}

func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{templates: make(map[string][]Template)}
}

func (s *InMemoryTemplateStore) Put(t Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = append(s.templates[t.ID], t)
}

func (s *InMemoryTemplateStore) Find(_ context.Context, templateID string) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Template{}, s.templates[templateID]...), nil
}

// ResolveTemplate picks the template variant for a tenant: the tenant's own
// active variant wins, else the global default active variant, else the
// send fails fast as a configuration error (never retried).
func ResolveTemplate(ctx context.Context, store TemplateStore, tenantID, templateID string) (Template, error) {
	variants, err := store.Find(ctx, templateID)
	if err != nil {
		return Template{}, dErrors.Wrap(err, dErrors.CodeInternal, "template lookup failed")
	}
	var global *Template
	for i := range variants {
		t := variants[i]
		if !t.Active {
			continue
		}
		if t.TenantID == tenantID && tenantID != "" {
			return t, nil
		}
		if t.TenantID == "" && global == nil {
			global = &variants[i]
		}
	}
	if global != nil {
		return *global, nil
	}
	return Template{}, dErrors.New(dErrors.CodeConfig, "no active template variant for "+templateID)
}

var placeholderPattern = regexp.MustCompile(`#\{([a-zA-Z0-9_]+)\}`)

// RenderTemplate substitutes #{key} placeholders. A placeholder left
// unresolved after substitution is a programmer/config error, not a
// transient failure.
func RenderTemplate(body string, variables map[string]string) (string, error) {
	rendered := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		key := match[2 : len(match)-1]
		if v, ok := variables[key]; ok {
			return v
		}
		return match
	})
	if idx := strings.Index(rendered, "#{"); idx >= 0 {
		if m := placeholderPattern.FindString(rendered); m != "" {
			return "", dErrors.New(dErrors.CodeConfig, "unresolved template placeholder: "+m)
		}
	}
	return rendered, nil
}

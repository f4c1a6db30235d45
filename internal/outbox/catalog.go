package outbox

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

type templateCatalog struct {
	Templates []struct {
		ID       string `yaml:"id"`
		TenantID string `yaml:"tenant_id"`
		Code     string `yaml:"code"`
		Body     string `yaml:"body"`
		Active   bool   `yaml:"active"`
	} `yaml:"templates"`
}

// LoadTemplates reads the template catalog from path, falling back to the
// embedded default when path is empty, and returns a populated store.
func LoadTemplates(path string) (*InMemoryTemplateStore, error) {
	data := defaultTemplates
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template catalog: %w", err)
		}
		data = b
	}
	var catalog templateCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	if len(catalog.Templates) == 0 {
		return nil, fmt.Errorf("template catalog: no templates defined")
	}
	store := NewInMemoryTemplateStore()
	for _, t := range catalog.Templates {
		if t.ID == "" || t.Code == "" || t.Body == "" {
			return nil, fmt.Errorf("template catalog: entry %q is missing id, code or body", t.ID)
		}
		store.Put(Template{
			ID:       t.ID,
			TenantID: t.TenantID,
			Code:     t.Code,
			Body:     t.Body,
			Active:   t.Active,
		})
	}
	return store, nil
}

package safety

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed operators.yaml
var defaultOperators []byte

type operatorFile struct {
	Operators []struct {
		ID       string `yaml:"id"`
		TenantID string `yaml:"tenant_id"`
		Name     string `yaml:"name"`
		Phone    string `yaml:"phone"`
		Role     string `yaml:"role"`
	} `yaml:"operators"`
}

// LoadDirectory reads the operator directory from path, falling back to the
// embedded default when path is empty. Every tenant with safety-critical
// traffic needs at least one director, or the critical level pages nobody.
func LoadDirectory(path string) (*InMemoryDirectory, error) {
	data := defaultOperators
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read operator directory: %w", err)
		}
		data = b
	}
	var file operatorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse operator directory: %w", err)
	}
	directory := NewInMemoryDirectory()
	directors := 0
	for _, op := range file.Operators {
		if op.ID == "" || op.TenantID == "" {
			return nil, fmt.Errorf("operator directory: entry %q is missing id or tenant_id", op.ID)
		}
		if op.Role == RoleDirector {
			directors++
		}
		directory.Add(Operator{
			ID:       op.ID,
			TenantID: op.TenantID,
			Name:     op.Name,
			Phone:    op.Phone,
			Role:     op.Role,
		})
	}
	if directors == 0 {
		return nil, fmt.Errorf("operator directory: no directors defined")
	}
	return directory, nil
}

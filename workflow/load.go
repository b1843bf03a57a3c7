package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goailoop/ailoop/model"
)

// LoadDefinitionFile parses a single YAML workflow definition file.
func LoadDefinitionFile(path string) (model.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	var def model.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("workflow: parse %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// LoadDefinitionsDir parses every *.yaml/*.yml file directly under dir. A
// missing directory is not an error: it is treated as "no workflows
// configured" so a server with no workflow support still starts cleanly.
func LoadDefinitionsDir(dir string) ([]model.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: read dir %s: %w", dir, err)
	}

	var defs []model.WorkflowDefinition
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadDefinitionFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

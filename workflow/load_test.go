package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDefinitionYAML = `
name: deploy
initial_state: build
terminal_states: [done, failed]
states:
  build:
    command: "echo building"
    transitions:
      success: deploy
      failure: failed
  deploy:
    command: "echo deploying"
    transitions:
      success: done
      failure: failed
  done:
    command: "echo done"
  failed:
    command: "echo failed"
`

func TestLoadDefinitionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinitionYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	def, err := LoadDefinitionFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "deploy" || def.InitialState != "build" {
		t.Errorf("def = %+v", def)
	}
	if !ValidateWorkflow(def).IsValid() {
		t.Errorf("expected a valid definition, got %+v", ValidateWorkflow(def))
	}
}

func TestLoadDefinitionFileDefaultsNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unnamed.yml")
	contents := `
initial_state: a
terminal_states: [a]
states:
  a:
    command: "echo ok"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	def, err := LoadDefinitionFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "unnamed" {
		t.Errorf("name = %q", def.Name)
	}
}

func TestLoadDefinitionsDirSkipsNonYAMLAndMissingDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "deploy.yaml"), []byte(sampleDefinitionYAML), 0o644)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a workflow"), 0o644)

	defs, err := LoadDefinitionsDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 || defs[0].Name != "deploy" {
		t.Errorf("defs = %+v", defs)
	}

	missing, err := LoadDefinitionsDir(filepath.Join(dir, "does-not-exist"))
	if err != nil || missing != nil {
		t.Errorf("missing = %+v, err = %v", missing, err)
	}
}

package templates

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"calseed/internal/models"
)

// file is the on-disk shape of the template catalog.
type file struct {
	Templates []models.EventTemplate `yaml:"templates"`
}

// Load reads the template catalog once at startup. An empty catalog is a
// fatal startup error. Field-level problems inside a template are left to be
// surfaced at assignment time; only the catalog's structure is checked here.
func Load(path string) ([]models.EventTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	// Support ${ENV_VAR} placeholders like the main config.
	data = []byte(os.ExpandEnv(string(data)))

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("no templates defined in %s", path)
	}

	seen := make(map[int64]bool, len(f.Templates))
	for i := range f.Templates {
		t := &f.Templates[i]
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate template id %d", t.ID)
		}
		seen[t.ID] = true
	}

	return f.Templates, nil
}

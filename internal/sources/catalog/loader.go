package catalog

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envRef matches ${NAME} references expanded from the environment.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader reads the catalog file.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

func (l *Loader) Path() string {
	return l.filePath
}

// Load reads and parses the catalog file.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read catalog file: %w", err)
	}

	data = expandEnv(data)

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse catalog yaml: %w", err)
	}
	return f, nil
}

// expandEnv replaces ${NAME} with the variable's value, or "" when unset.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

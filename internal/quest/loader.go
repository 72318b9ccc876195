package quest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lanternvale/questline/internal/logger"
)

// File represents one quests.yaml content file: a map of quest id to
// definition.
type File struct {
	Quests map[string]Definition `yaml:"quests"`
}

// LoadFile parses quest definitions from a YAML file.
func LoadFile(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read quests file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses quest definitions from raw YAML.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse quests YAML: %w", err)
	}
	if f.Quests == nil {
		f.Quests = make(map[string]Definition)
	}
	for id, def := range f.Quests {
		def.ID = id
		f.Quests[id] = def
	}
	return &f, nil
}

// Merge combines another file into this one. Later files win on id
// collisions.
func (f *File) Merge(other *File) {
	if other == nil {
		return
	}
	for id, def := range other.Quests {
		f.Quests[id] = def
	}
}

// LoadDirectory loads and merges all YAML files from a directory.
func LoadDirectory(dir string) (*File, error) {
	merged := &File{Quests: make(map[string]Definition)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	fileCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		filePath := filepath.Join(dir, name)
		f, err := LoadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", filePath, err)
		}
		merged.Merge(f)
		fileCount++
		logger.Info("Loaded quest file", "path", filePath, "quests", len(f.Quests))
	}

	logger.Info("Loaded quests from directory", "dir", dir, "files", fileCount, "total_quests", len(merged.Quests))
	return merged, nil
}

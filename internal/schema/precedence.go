package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the default sidecar file name, looked for in the project
// working directory.
const FileName = ".shmschema.json"

// Sources tracks which sidecar files contributed to a Load call.
type Sources struct {
	Global  string // Path to the global sidecar if loaded, empty otherwise
	Project string // Path to the project/explicit sidecar if loaded, empty otherwise
}

// getGlobalSchemaPath returns the path to the global sidecar file.
// Uses $XDG_CONFIG_HOME/cffi-shm/schema.json if set, otherwise
// ~/.config/cffi-shm/schema.json. Returns empty string if the home
// directory cannot be determined.
func getGlobalSchemaPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "cffi-shm", "schema.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cffi-shm", "schema.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "cffi-shm", "schema.json")
	}

	return ""
}

// Load resolves the sidecar schema with the following precedence
// (highest wins): built-in defaults (empty), global user sidecar, then
// the project sidecar at workDir/FileName, or explicitPath if non-empty
// (in which case it must exist). env overrides os.Environ for locating
// the global sidecar, primarily so tests don't depend on the real
// environment; pass nil to use the process environment.
func Load(workDir, explicitPath string, env []string) (*File, Sources, error) {
	merged := &File{}

	var sources Sources

	globalPath := getGlobalSchemaPath(env)
	if globalPath != "" {
		globalFile, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return nil, Sources{}, err
		}

		if loaded {
			sources.Global = globalPath
			merged = Merge(merged, globalFile)
		}
	}

	var (
		projectPath string
		mustExist   bool
	)

	if explicitPath != "" {
		projectPath = explicitPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	} else {
		projectPath = filepath.Join(workDir, FileName)
	}

	projectFile, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return nil, Sources{}, err
	}

	if loaded {
		sources.Project = projectPath
		merged = Merge(merged, projectFile)
	}

	return merged, sources, nil
}

// loadFile loads a sidecar file. If mustExist is false, a missing file
// returns (nil, false, nil) rather than an error.
func loadFile(path string, mustExist bool) (*File, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally configurable
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%w: %s", ErrSchemaFileNotFound, path)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}

	return f, true, nil
}

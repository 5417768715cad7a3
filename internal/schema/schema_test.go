package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTolerantJSON(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		// a comment HuJSON tolerates but encoding/json would reject
		"primitives": {"my_int_t": "int64"},
		"structs": {
			"Point": {
				"size": 16,
				"immutable": true,
				"fields": [
					{"name": "x", "offset": 0, "type": "int64"},
					{"name": "y", "offset": 8, "type": "int64"},
				],
			},
		},
	}`)

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.Primitives["my_int_t"] != "int64" {
		t.Fatalf("expected primitive alias to parse, got %+v", f.Primitives)
	}

	point, ok := f.Structs["Point"]
	if !ok {
		t.Fatalf("expected Point struct to parse")
	}

	if point.Size != 16 || !point.Immutable || len(point.Fields) != 2 {
		t.Fatalf("unexpected Point schema: %+v", point)
	}
}

func TestParseInvalidJSONFails(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte(`{not valid`)); err == nil {
		t.Fatalf("expected an error for malformed input")
	}
}

func TestMergeOverlayWinsOnCollision(t *testing.T) {
	t.Parallel()

	base := &File{
		Primitives: map[string]string{"a": "base", "shared": "base"},
		Structs:    map[string]StructSchema{"S": {Size: 1}},
	}

	overlay := &File{
		Primitives: map[string]string{"b": "overlay", "shared": "overlay"},
	}

	merged := Merge(base, overlay)

	if merged.Primitives["a"] != "base" {
		t.Fatalf("base-only key should survive, got %q", merged.Primitives["a"])
	}

	if merged.Primitives["b"] != "overlay" {
		t.Fatalf("overlay-only key should survive, got %q", merged.Primitives["b"])
	}

	if merged.Primitives["shared"] != "overlay" {
		t.Fatalf("overlay must win on collision, got %q", merged.Primitives["shared"])
	}

	if _, ok := merged.Structs["S"]; !ok {
		t.Fatalf("base struct should survive a merge with no overlay structs")
	}

	// Neither input should be mutated by Merge.
	if len(base.Primitives) != 2 || len(overlay.Primitives) != 2 {
		t.Fatalf("Merge must not mutate its arguments")
	}
}

func TestLoadProjectSidecarOverridesGlobal(t *testing.T) {
	dir := t.TempDir()

	globalDir := filepath.Join(dir, "config-home")
	if err := os.MkdirAll(filepath.Join(globalDir, "cffi-shm"), 0o755); err != nil { //nolint:gosec
		t.Fatalf("MkdirAll: %v", err)
	}

	globalPath := filepath.Join(globalDir, "cffi-shm", "schema.json")
	if err := os.WriteFile(globalPath, []byte(`{"primitives": {"id_t": "int64"}}`), 0o644); err != nil { //nolint:gosec
		t.Fatalf("WriteFile global: %v", err)
	}

	workDir := filepath.Join(dir, "project")
	if err := os.MkdirAll(workDir, 0o755); err != nil { //nolint:gosec
		t.Fatalf("MkdirAll: %v", err)
	}

	projectPath := filepath.Join(workDir, FileName)
	if err := os.WriteFile(projectPath, []byte(`{"primitives": {"id_t": "uint64"}}`), 0o644); err != nil { //nolint:gosec
		t.Fatalf("WriteFile project: %v", err)
	}

	env := []string{"XDG_CONFIG_HOME=" + globalDir}

	f, sources, err := Load(workDir, "", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if sources.Global != globalPath {
		t.Fatalf("expected global source %q, got %q", globalPath, sources.Global)
	}

	if sources.Project != projectPath {
		t.Fatalf("expected project source %q, got %q", projectPath, sources.Project)
	}

	if f.Primitives["id_t"] != "uint64" {
		t.Fatalf("expected project sidecar to win, got %q", f.Primitives["id_t"])
	}
}

func TestLoadWithNoSidecarsReturnsEmptyFile(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	// Point the global sidecar search at an empty directory so a real
	// developer machine's XDG_CONFIG_HOME/home dir can't leak in.
	env := []string{"XDG_CONFIG_HOME=" + t.TempDir()}

	f, sources, err := Load(workDir, "", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if sources.Global != "" || sources.Project != "" {
		t.Fatalf("expected no sources loaded, got %+v", sources)
	}

	if len(f.Primitives) != 0 || len(f.Structs) != 0 {
		t.Fatalf("expected an empty merged file, got %+v", f)
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	env := []string{"XDG_CONFIG_HOME=" + t.TempDir()}

	_, _, err := Load(workDir, "missing-schema.json", env)
	if err == nil {
		t.Fatalf("expected an error when an explicit sidecar path does not exist")
	}
}

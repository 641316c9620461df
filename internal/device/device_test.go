package device

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestLoadOrCreateInstanceID_CreatesFile(t *testing.T) {
	dir := t.TempDir()

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if id == "" {
		t.Fatal("LoadOrCreateInstanceID() returned empty string")
	}

	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != id {
		t.Errorf("file content = %q, want %q", got, id)
	}
}

func TestLoadOrCreateInstanceID_ReturnsExisting(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}
}

func TestLoadOrCreateInstanceID_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("id %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Errorf("UUID version = %d, want 7", parsed.Version())
	}
}

func TestLoadOrCreateInstanceID_UnreadableFile(t *testing.T) {
	dir := t.TempDir()
	// A directory in the file's place cannot be read or overwritten.
	if err := os.Mkdir(filepath.Join(dir, "instance_id"), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	if id, err := LoadOrCreateInstanceID(dir); err == nil {
		t.Errorf("LoadOrCreateInstanceID() = %q, want read error", id)
	}
}

func TestLoadOrCreateInstanceID_BlankFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance_id")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != id {
		t.Errorf("file content = %q, want %q", got, id)
	}
}

func TestNewInfo(t *testing.T) {
	info := NewInfo("test-instance-id", "garage")
	if info.Name != "garage" {
		t.Errorf("Name = %q, want %q", info.Name, "garage")
	}
	if len(info.Identifiers) != 1 || info.Identifiers[0] != "test-instance-id" {
		t.Errorf("Identifiers = %v, want [test-instance-id]", info.Identifiers)
	}
	if got := info.UniqueID("temp"); got != "test-instance-id_temp" {
		t.Errorf("UniqueID() = %q", got)
	}
}

func TestInfo_Conf(t *testing.T) {
	info := Info{Identifiers: []string{"abc"}, Name: "garage", Model: "m"}

	data, err := json.Marshal(info.Conf())
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"identifiers":["abc"],"name":"garage","model":"m"}`
	if string(data) != want {
		t.Errorf("Conf() JSON = %s, want %s", data, want)
	}
}

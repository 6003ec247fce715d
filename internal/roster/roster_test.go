package roster

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleRoster = `
collaborators:
  - id: 101
    name: "Quézia Almeida"
    department: "Fiscal"
  - id: 202
    name: "Bruno Lima"
    department: "Contábil"
  - id: 303
    name: "Carla Dias"
    department: "Fiscal"
  - id: 0
    name: "Broken Entry"
  - id: 404
    name: ""
`

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	r, err := Load(writeRoster(t, sampleRoster))
	if err != nil {
		t.Fatal(err)
	}

	// Entries without id or name are dropped.
	if got := len(r.All()); got != 3 {
		t.Errorf("loaded %d collaborators, want 3", got)
	}

	c, ok := r.Lookup(101)
	if !ok {
		t.Fatal("Lookup(101) failed")
	}
	if c.Name != "Quézia Almeida" {
		t.Errorf("Name = %q", c.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing roster file should fail")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeRoster(t, "collaborators: [not closed")); err == nil {
		t.Error("invalid YAML should fail")
	}
}

func TestDepartments(t *testing.T) {
	r, err := Load(writeRoster(t, sampleRoster))
	if err != nil {
		t.Fatal(err)
	}

	got := r.Departments()
	want := []string{"CONTÁBIL", "FISCAL"}
	if len(got) != len(want) {
		t.Fatalf("Departments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Departments = %v, want %v", got, want)
			break
		}
	}
}

func TestScopeIDs(t *testing.T) {
	r, err := Load(writeRoster(t, sampleRoster))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		department string
		substring  string
		want       []int
	}{
		{"no filters means everyone", "", "", []int{101, 202, 303}},
		{"department case-insensitive", "fiscal", "", []int{101, 303}},
		{"name substring", "", "Bruno", []int{202}},
		{"accent-folded match", "", "quezia", []int{101}},
		{"name wins over department", "Contábil", "Carla", []int{303}},
		{"no match", "JURÍDICO", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ScopeIDs(tt.department, tt.substring)
			if len(got) != len(tt.want) {
				t.Fatalf("ScopeIDs = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("ScopeIDs = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestReload_SwapsDirectory(t *testing.T) {
	path := writeRoster(t, sampleRoster)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	updated := `
collaborators:
  - id: 999
    name: "New Hire"
    department: "Fiscal"
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Lookup(101); ok {
		t.Error("old entries should be gone after reload")
	}
	if _, ok := r.Lookup(999); !ok {
		t.Error("new entry missing after reload")
	}
}

func TestFoldForMatch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Quézia", "quezia"},
		{"JOÃO", "joao"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := foldForMatch(tt.in); got != tt.want {
			t.Errorf("foldForMatch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

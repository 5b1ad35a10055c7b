package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadBuiltin(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Departments) != 8 {
		t.Errorf("expected 8 departments, got %d", len(c.Departments))
	}
	if c.Names()[0] != "Computer Science and Engineering" {
		t.Errorf("catalogue order not kept: %v", c.Names())
	}
	topics := c.Topics("Mechanical Engineering")
	if len(topics) != 6 || topics[5] != "CAD/CAM" {
		t.Errorf("unexpected topics %v", topics)
	}
	if c.Topics("Astrology") != nil {
		t.Error("unknown department should have no topics")
	}
	if !c.HasDepartment("Architecture") || c.HasDepartment("architecture ") {
		t.Error("HasDepartment mismatch")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	doc := `{"departments":[{"name":" Physics ","topics":["Optics"," ","Optics","Mechanics"]}]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(c.Names(), []string{"Physics"}) {
		t.Errorf("Names = %v", c.Names())
	}
	if !reflect.DeepEqual(c.Topics("Physics"), []string{"Optics", "Mechanics"}) {
		t.Errorf("Topics = %v", c.Topics("Physics"))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `departments:`},
		{"empty", `{"departments":[]}`},
		{"no name", `{"departments":[{"name":" ","topics":["A"]}]}`},
		{"duplicate", `{"departments":[{"name":"A"},{"name":"A"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

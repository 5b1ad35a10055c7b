// Package catalog lists the departments and topics offered on the start
// form. A built-in list is embedded; a JSON file can replace it.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
)

//go:embed catalog.json
var builtin []byte

// Department is one department and the topics it offers.
type Department struct {
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
}

// Catalog is the ordered department list.
type Catalog struct {
	Departments []Department `json:"departments"`
}

// Load reads the catalogue from path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	data := builtin
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes and validates a catalogue document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Departments) == 0 {
		return nil, fmt.Errorf("catalog has no departments")
	}
	seen := make(map[string]bool, len(c.Departments))
	for i, d := range c.Departments {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("department %d has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate department %q", name)
		}
		seen[name] = true
		c.Departments[i].Name = name
		c.Departments[i].Topics = lo.Uniq(lo.Compact(lo.Map(d.Topics, func(t string, _ int) string {
			return strings.TrimSpace(t)
		})))
	}
	return &c, nil
}

// Names returns the department names in catalogue order.
func (c *Catalog) Names() []string {
	return lo.Map(c.Departments, func(d Department, _ int) string { return d.Name })
}

// Topics returns the topics of a department, or nil if it is unknown.
func (c *Catalog) Topics(department string) []string {
	d, ok := lo.Find(c.Departments, func(d Department) bool { return d.Name == department })
	if !ok {
		return nil
	}
	return d.Topics
}

// HasDepartment reports whether the department is listed.
func (c *Catalog) HasDepartment(department string) bool {
	return lo.ContainsBy(c.Departments, func(d Department) bool { return d.Name == department })
}

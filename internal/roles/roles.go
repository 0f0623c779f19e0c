// Package roles holds the static catalog of simulated job roles. Each role
// carries a human-readable description shown during role selection and the
// role-specific simulation instructions sent to the model on the opening turn.
package roles

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed roles.yaml
var defaultCatalog []byte

// ErrUnknownRole is returned when a role name is not present in the catalog.
var ErrUnknownRole = errors.New("unknown role")

// Role describes one simulated job role.
type Role struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Instructions string `yaml:"instructions"`
}

// Catalog is an ordered, immutable set of roles. Order is declaration order
// in the source YAML and is stable across calls.
type Catalog struct {
	roles  []Role
	byName map[string]int
}

// NewCatalog loads the embedded role catalog.
func NewCatalog() (*Catalog, error) {
	return NewCatalogFromYAML(defaultCatalog)
}

// NewCatalogFromYAML builds a catalog from a YAML document. Roles are declared
// as a sequence so that insertion order survives parsing.
func NewCatalogFromYAML(data []byte) (*Catalog, error) {
	var doc struct {
		Roles []Role `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse role catalog: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, errors.New("role catalog is empty")
	}

	c := &Catalog{
		roles:  doc.Roles,
		byName: make(map[string]int, len(doc.Roles)),
	}
	for i, r := range doc.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("role catalog entry %d has no name", i)
		}
		if r.Instructions == "" {
			return nil, fmt.Errorf("role %q has no instructions", r.Name)
		}
		if _, exists := c.byName[r.Name]; exists {
			return nil, fmt.Errorf("duplicate role %q in catalog", r.Name)
		}
		c.byName[r.Name] = i
	}
	return c, nil
}

// List returns all roles in declaration order. The returned slice is a copy.
func (c *Catalog) List() []Role {
	out := make([]Role, len(c.roles))
	copy(out, c.roles)
	return out
}

// Get looks up a role by name.
func (c *Catalog) Get(name string) (Role, error) {
	i, ok := c.byName[name]
	if !ok {
		return Role{}, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return c.roles[i], nil
}

// Instructions returns the simulation instructions for the named role.
func (c *Catalog) Instructions(name string) (string, error) {
	r, err := c.Get(name)
	if err != nil {
		return "", err
	}
	return r.Instructions, nil
}

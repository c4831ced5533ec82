package manifest

import (
	"errors"
	"fmt"
	"slices"
)

// Manifest lists the packages requested for every supported platform.
type Manifest struct {
	// Base applies on every platform.
	Base []Declaration
	// Darwin adds what macOS builds need on top of Base.
	Darwin []Declaration
	// Linux adds what Linux builds need on top of Base.
	Linux []Declaration
}

var (
	// ErrDuplicateName is returned when a resolved set names a package twice.
	ErrDuplicateName = errors.New("duplicate package name")
	// ErrNotDeclared is returned by Find for a package outside the resolved set.
	ErrNotDeclared = errors.New("package not declared")
)

// Resolve returns Base followed by the platform's extension, in declaration order.
func (m *Manifest) Resolve(p Platform) ([]Declaration, error) {
	var extension []Declaration

	switch p {
	case Darwin:
		extension = m.Darwin
	case Linux:
		extension = m.Linux
	default:
		return nil, unsupported(p)
	}

	resolved := make([]Declaration, 0, len(m.Base)+len(extension))
	resolved = append(resolved, m.Base...)
	resolved = append(resolved, extension...)

	return resolved, nil
}

// Find returns the declaration called name in the set resolved for p.
func (m *Manifest) Find(p Platform, name string) (Declaration, error) {
	resolved, err := m.Resolve(p)
	if err != nil {
		return Declaration{}, err
	}

	idx := slices.IndexFunc(resolved, func(d Declaration) bool { return d.Name == name })
	if idx < 0 {
		return Declaration{}, fmt.Errorf("%w: %s on %s", ErrNotDeclared, name, p)
	}

	return resolved[idx], nil
}

// Validate checks every declaration and name uniqueness within each resolvable set.
func (m *Manifest) Validate() error {
	for _, p := range []Platform{Darwin, Linux} {
		resolved, err := m.Resolve(p)
		if err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(resolved))

		for _, d := range resolved {
			if err = d.Validate(); err != nil {
				return err
			}

			if _, dup := seen[d.Name]; dup {
				return fmt.Errorf("%w: %s on %s", ErrDuplicateName, d.Name, p)
			}

			seen[d.Name] = struct{}{}
		}
	}

	return nil
}

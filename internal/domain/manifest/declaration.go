package manifest

import (
	"errors"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Declaration is a pinned reference to one package fetched by the package manager.
type Declaration struct {
	// Name identifies the package and is unique within a resolved set.
	Name string
	// Version is the pinned version including the packaging revision, e.g. "5.12.11-3".
	Version string
	// Channel is the user/channel pair the package is published under.
	Channel string
}

var (
	// ErrBadReference is returned when a reference string is malformed.
	ErrBadReference = errors.New("malformed package reference")
	// errEmptyField is returned when a declaration misses one of its fields.
	errEmptyField = errors.New("declaration field is empty")
)

// ParseReference parses "name/version@user/channel".
func ParseReference(ref string) (Declaration, error) {
	ref = strings.TrimSpace(ref)

	nameVersion, channel, ok := strings.Cut(ref, "@")
	if !ok {
		return Declaration{}, fmt.Errorf("%w: %q has no channel", ErrBadReference, ref)
	}

	name, ver, ok := strings.Cut(nameVersion, "/")
	if !ok {
		return Declaration{}, fmt.Errorf("%w: %q has no version", ErrBadReference, ref)
	}

	d := Declaration{Name: name, Version: ver, Channel: channel}
	if err := d.Validate(); err != nil {
		return Declaration{}, fmt.Errorf("%w: %w", ErrBadReference, err)
	}

	return d, nil
}

// MustParseReference is ParseReference for compiled-in references.
func MustParseReference(ref string) Declaration {
	d, err := ParseReference(ref)
	if err != nil {
		panic(err)
	}

	return d
}

// Reference renders the declaration the way the package manager expects it.
func (d Declaration) Reference() string {
	return d.Name + "/" + d.Version + "@" + d.Channel
}

// String implements fmt.Stringer.
func (d Declaration) String() string {
	return d.Reference()
}

// Upstream returns the version without the packaging revision suffix.
func (d Declaration) Upstream() string {
	upstream, _, _ := strings.Cut(d.Version, "-")
	return upstream
}

// Validate checks that every field is set and the version is well-formed.
func (d Declaration) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("name: %w", errEmptyField)
	case strings.TrimSpace(d.Version) == "":
		return fmt.Errorf("%s: version: %w", d.Name, errEmptyField)
	case strings.TrimSpace(d.Channel) == "":
		return fmt.Errorf("%s: channel: %w", d.Name, errEmptyField)
	case strings.ContainsAny(d.Name, "/@ \t"):
		return fmt.Errorf("%w: name %q", ErrBadReference, d.Name)
	}

	if _, err := goversion.NewVersion(d.Version); err != nil {
		return fmt.Errorf("%s: version %q: %w", d.Name, d.Version, err)
	}

	return nil
}

// References renders a list of declarations.
func References(decls []Declaration) []string {
	refs := make([]string, 0, len(decls))
	for _, d := range decls {
		refs = append(refs, d.Reference())
	}

	return refs
}

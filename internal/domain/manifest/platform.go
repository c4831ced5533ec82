package manifest

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Platform names a host operating system the way the package manager reports it.
type Platform string

const (
	// Darwin is macOS.
	Darwin Platform = "Darwin"
	// Linux is any Linux distribution.
	Linux Platform = "Linux"
)

// ErrUnsupportedPlatform is returned when a host has no extension list.
var ErrUnsupportedPlatform = errors.New("unknown platform")

// DetectPlatform returns the platform of the running host.
func DetectPlatform() Platform {
	return ParsePlatform(runtime.GOOS)
}

// ParsePlatform maps user or GOOS spellings to a Platform.
// Unknown names are returned title-cased so that Resolve can report them.
func ParsePlatform(s string) Platform {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "darwin", "macos", "osx":
		return Darwin
	case "linux":
		return Linux
	case "":
		return ""
	default:
		return Platform(strings.ToUpper(s[:1]) + s[1:])
	}
}

// Supported reports whether p has an extension list.
func (p Platform) Supported() bool {
	return p == Darwin || p == Linux
}

// String implements fmt.Stringer.
func (p Platform) String() string {
	return string(p)
}

// unsupported builds the error reported for p.
func unsupported(p Platform) error {
	return fmt.Errorf("%w %q", ErrUnsupportedPlatform, string(p))
}

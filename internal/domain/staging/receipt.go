package staging

import "time"

// Step names used as keys in Receipt.Counts.
const (
	StepBinaries = "binaries"
	StepPlugins  = "plugins"
	StepLicenses = "licenses"
	StepPatched  = "patched"
	StepRemoved  = "removed"
)

// Actor identifies who ran a staging pass.
type Actor struct {
	// Hostname is the machine name.
	Hostname string
	// Username is the system user.
	Username string
}

// Clone returns a copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Receipt records one completed staging pass.
type Receipt struct {
	// Timestamp is when the pass finished.
	Timestamp time.Time
	// Actor ran the pass.
	Actor *Actor
	// ToolVersion is the depstage version that staged the tree.
	ToolVersion string
	// Platform the declarations were resolved for.
	Platform string
	// StagingRoot is the tree that was populated.
	StagingRoot string
	// References are the staged package references in manifest order.
	References []string
	// Counts maps step names to the number of files the step touched.
	Counts map[string]int
}

// Clone returns a deep copy of the receipt.
func (r *Receipt) Clone() *Receipt {
	counts := make(map[string]int, len(r.Counts))
	for k, v := range r.Counts {
		counts[k] = v
	}

	return &Receipt{
		Timestamp:   r.Timestamp,
		Actor:       r.Actor.Clone(),
		ToolVersion: r.ToolVersion,
		Platform:    r.Platform,
		StagingRoot: r.StagingRoot,
		References:  append([]string(nil), r.References...),
		Counts:      counts,
	}
}

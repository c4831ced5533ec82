// Package stager arranges fetched packages into the runtime tree.
//
// After the package manager has fetched every declared package, Run copies
// executables, UI toolkit plugins and license texts into the staging root,
// writes qt.conf, rewrites framework load paths of the Qt tools and re-signs
// them on macOS, tightens license permissions and removes the compiler-rt
// archive that has no arm64 slice. A receipt of the pass is saved at the end.
package stager

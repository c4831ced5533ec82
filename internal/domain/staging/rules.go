package staging

import (
	"path/filepath"
	"slices"
	"strings"
)

// Rules is the complete description of a staging pass.
type Rules struct {
	// Binaries copies executables into the runtime bin directory.
	Binaries Entry
	// Plugins copies UI toolkit plugins.
	Plugins Entry
	// Licenses copies license texts.
	Licenses Entry
	// QtConfName is written into the binaries destination.
	QtConfName string
	// QtPackage is the package whose root becomes the qt.conf prefix and the framework location.
	QtPackage string
	// CompilerPackage ships the compiler-rt archive that gets removed.
	CompilerPackage string
	// PatchTools are the staged binaries whose framework references are rewritten (macOS only).
	PatchTools []string
	// Frameworks are the Qt frameworks each patch tool may reference.
	Frameworks []string
	// FrameworkMajor is the framework version directory, "5" for Qt 5.
	FrameworkMajor string
	// BenignPatchOutput are substrings of install_name_tool output that are not failures.
	BenignPatchOutput []string
	// BenignSignOutput are substrings of codesign output that are not failures.
	BenignSignOutput []string
}

// DefaultRules returns the staging layout the application expects at runtime.
func DefaultRules() *Rules {
	return &Rules{
		Binaries: Entry{
			Source:      "bin",
			Pattern:     "**",
			Destination: "bin",
			Excludes:    []string{"lconvert"},
		},
		Plugins: Entry{
			Source:      "plugins",
			Pattern:     "**",
			Destination: filepath.Join("lib", "QtPlugins"),
		},
		Licenses: Entry{
			Source:      "license",
			Pattern:     "**",
			Destination: "license",
		},
		QtConfName:      "qt.conf",
		QtPackage:       "qt",
		CompilerPackage: "llvm",
		PatchTools:      []string{"lrelease", "lupdate", "uic"},
		Frameworks: []string{
			"QtCore",
			"QtGui",
			"QtNetwork",
			"QtPrintSupport",
			"QtQml",
			"QtQuick",
			"QtQuickTest",
			"QtTest",
			"QtWidgets",
			"QtXml",
		},
		FrameworkMajor:    "5",
		BenignPatchOutput: []string{"will invalidate the code signature"},
		BenignSignOutput:  []string{": replacing existing signature"},
	}
}

// Validate checks the globs of every entry.
func (r *Rules) Validate() error {
	for _, e := range []Entry{r.Binaries, r.Plugins, r.Licenses} {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// IsPatchTool reports whether the staged binary name gets its load paths rewritten.
func (r *Rules) IsPatchTool(name string) bool {
	return slices.Contains(r.PatchTools, name)
}

// QtConf renders the qt.conf that points Qt at its installed prefix.
func QtConf(prefix string) string {
	return "[Paths]\nPrefix = " + prefix
}

// RpathReference is the framework load path embedded in Qt tools at build time.
func RpathReference(framework, major string) string {
	return "@rpath/" + frameworkBinary(framework, major)
}

// InstalledReference is the framework load path inside the fetched Qt package.
func InstalledReference(qtRoot, framework, major string) string {
	return strings.TrimSuffix(qtRoot, "/") + "/lib/" + frameworkBinary(framework, major)
}

// CompilerRuntimeArchive is the compiler-rt archive that lacks an arm64 slice
// until LLVM 11 and makes the linker warn on every link.
func CompilerRuntimeArchive(llvmRoot, llvmVersion string) string {
	return filepath.Join(llvmRoot, "lib", "clang", llvmVersion, "lib", "darwin", "libclang_rt.osx.a")
}

func frameworkBinary(framework, major string) string {
	return framework + ".framework/Versions/" + major + "/" + framework
}

// Package toolchain renders a CMake fragment exposing the upstream version of
// every resolved dependency as a CONAN_<name>_VERSION cache variable.
package toolchain

// Package locker writes the requirements lock consumed by the package manager.
//
// The lock lists the package references resolved for one platform in manifest
// order, together with the depstage version that produced it.
package locker

// Package manifest declares the third-party packages the application is built against.
//
// A Manifest holds a base list that applies everywhere plus one extension list per
// supported host. Resolve returns the ordered declarations for a platform and is the
// only place an unsupported host is rejected.
package manifest

// Package common holds helpers shared by several services.
//
// It runs external tools with a timeout and filters the informational lines
// those tools print, and detects the host/user pair recorded in receipts.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

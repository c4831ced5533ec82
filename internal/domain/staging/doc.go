// Package staging describes how fetched packages are arranged into a runtime tree.
//
// It holds only data and pure helpers: the copy rules, the tools whose load
// paths get rewritten, and the warnings those tools print that are not failures.
// The stager service applies them to disk.
package staging

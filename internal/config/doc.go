// Package config loads depstage settings.
//
// Settings come from an optional YAML file, an optional .env file next to it,
// and DEPSTAGE_* environment variables, in increasing order of precedence.
// Empty fields fall back to Defaults.
package config

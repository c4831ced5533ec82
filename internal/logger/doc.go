// Package logger wraps zap for the depstage commands.
//
// It keeps one global sugared logger writing to standard error, lets commands
// change its level at startup, and carries named loggers through contexts so
// every staging step logs under the component that ran it.
package logger

// Package service hosts the side-effect services that react to workflow
// events: in-app notifications with outbound delivery, and the audit trail.
package service

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

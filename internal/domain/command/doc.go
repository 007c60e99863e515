// Package command decodes inbound NUC commands into typed values and
// dispatches them to the Station's components.
package command

// Package utils provides small shared helpers for the sessiond service.
package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// NewSessionID generates an opaque unique session credential identifier.
func NewSessionID() string {
	return fmt.Sprintf("session_%s", uuid.NewString())
}

// NewTaskID generates a unique identifier for a delegated task execution.
func NewTaskID() string {
	return fmt.Sprintf("task_%s", uuid.NewString())
}

// NewRequestID generates a per-request correlation identifier.
func NewRequestID() string {
	return uuid.NewString()
}

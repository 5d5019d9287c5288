// Package domain holds the plain identifiers shared by every layer.
package domain

import "github.com/google/uuid"

// ConnID identifies one transport session. It is generated by the server
// and never reused for the lifetime of the process.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

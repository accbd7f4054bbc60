package engine

import "github.com/google/uuid"

// newUUIDv4String backs the default IDGenerator. Session and
// refresh-token IDs are opaque strings at the Engine's boundary
// (spec.md §3); uuid.UUID is just how the teacher's models generate
// them (internal/domain/models uses uuid.New() throughout).
func newUUIDv4String() string {
	return uuid.New().String()
}

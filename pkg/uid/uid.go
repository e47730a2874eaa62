package uid

import "github.com/google/uuid"

// New generates a new unique identifier. Used for request IDs and for the
// upload-session IDs that group a relist's photo uploads.
func New() string {
	return uuid.New().String()
}

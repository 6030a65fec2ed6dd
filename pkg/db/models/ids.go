package models

import "github.com/google/uuid"

// ensureID assigns a random UUID when the caller left the key empty. Rows are
// keyed in Go so the same models work against postgres and sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

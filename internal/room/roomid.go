package room

import (
	"github.com/google/uuid"
)

// ConnID identifies one live transport session. The value is opaque to
// this package.
type ConnID string

// IsValidRoomID reports whether id is a canonical version-4 UUID. Only such
// ids are ever admitted as rooms.
func IsValidRoomID(id string) bool {
	// uuid.Parse also accepts urn:uuid:, braced and hex-only forms.
	if len(id) != 36 {
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.Version() == 4 && parsed.Variant() == uuid.RFC4122
}

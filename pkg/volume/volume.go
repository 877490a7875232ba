package volume

import (
	"strings"

	"github.com/google/uuid"
)

// IDPrefix is carried by every volume identifier this driver issues
const IDPrefix = "nlc-"

// GenerateID derives the volume identifier for a create request. The ID is
// a name-based UUID, so a retried request yields the same volume and create
// is idempotent end to end.
func GenerateID(name string) string {
	return IDPrefix + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// ValidateID reports whether id is a well-formed volume identifier
func ValidateID(id string) bool {
	if !strings.HasPrefix(id, IDPrefix) {
		return false
	}
	_, err := uuid.Parse(id[len(IDPrefix):])
	return err == nil
}

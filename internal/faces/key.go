package faces

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-index/internal/constants"
	"golang.org/x/text/unicode/norm"
)

const (
	keyPrefix = constants.FaceKeyPrefix
	keySuffix = ".jpeg"

	// ContentType is the fixed output format of every stored crop.
	ContentType = "image/jpeg"
)

// NewKey generates a globally unique face key.
func NewKey() string {
	return keyPrefix + uuid.NewString() + keySuffix
}

// ValidKey reports whether s has the exact shape produced by NewKey.
// Captions round-tripped through the chat transport are untrusted and must pass
// this check before being used as index keys.
func ValidKey(s string) bool {
	if !strings.HasPrefix(s, keyPrefix) || !strings.HasSuffix(s, keySuffix) {
		return false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(s, keyPrefix), keySuffix)
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// NormalizeLabel trims surrounding whitespace and converts the label to NFC so
// that exact-match lookups do not depend on how a client composed the text.
func NormalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

package objectstore

import (
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyOnce sync.Once
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

// NewObjectID returns a lowercase ULID for object naming.
func NewObjectID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), newEntropy())
	return strings.ToLower(id.String())
}

// ObjectKey builds the storage key for a conversation attachment. The ULID
// prefix keeps repeated filenames from colliding.
func ObjectKey(conversationID, filename string) string {
	return path.Join("conversations", conversationID, NewObjectID()+"-"+SanitizeFilename(filename))
}

// StoredKey rebuilds the key of an already stored object from its
// conversation and object name. Base strips any path segments a caller
// smuggles in, so a key never escapes its conversation prefix.
func StoredKey(conversationID, objectName string) string {
	return path.Join("conversations", conversationID, path.Base(objectName))
}

// SanitizeFilename strips characters that are awkward in object keys.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

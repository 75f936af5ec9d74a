/*
Package uid – identifier generators for default field values.

UUIDs come from google/uuid; ULIDs use Crockford base-32.
*/
package uid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UUIDv4 returns a random RFC-4122 version 4 UUID.
func UUIDv4() string { return uuid.NewString() }

// UUIDv1 returns a time-based RFC-4122 version 1 UUID.
func UUIDv1() string {
	id, err := uuid.NewUUID()
	if err != nil {
		panic("uid: cannot generate v1 uuid: " + err.Error())
	}
	return id.String()
}

// IsUUID reports whether s is a UUID of the given version.
func IsUUID(s string, version int) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return int(id.Version()) == version
}

// Crockford base-32 alphabet (excludes I, L, O, U).
const letters = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	timeLen   = 10
	randomLen = 16
)

// ULID returns a lexicographically sortable identifier for the current time.
func ULID() string { return ULIDAt(time.Now()) }

// ULIDAt returns a ULID whose time component is t.
func ULIDAt(t time.Time) string {
	var b strings.Builder
	b.Grow(timeLen + randomLen)

	ms := t.UnixMilli()
	ts := make([]byte, timeLen)
	for i := timeLen - 1; i >= 0; i-- {
		ts[i] = letters[ms%32]
		ms /= 32
	}
	b.Write(ts)

	buf := make([]byte, randomLen)
	if _, err := rand.Read(buf); err != nil {
		panic("uid: crypto/rand read failed: " + err.Error())
	}
	for _, c := range buf {
		b.WriteByte(letters[c&31])
	}
	return b.String()
}

// ULIDTime extracts the timestamp of a ULID string.
func ULIDTime(s string) (time.Time, error) {
	if len(s) != timeLen+randomLen {
		return time.Time{}, fmt.Errorf("uid: invalid ULID length %d", len(s))
	}
	var ms int64
	for _, c := range []byte(s[:timeLen]) {
		idx := strings.IndexByte(letters, c)
		if idx < 0 {
			return time.Time{}, fmt.Errorf("uid: invalid ULID char %q", c)
		}
		ms = ms*32 + int64(idx)
	}
	return time.UnixMilli(ms), nil
}

// IsULID reports whether s is a well-formed ULID.
func IsULID(s string) bool {
	if len(s) != timeLen+randomLen {
		return false
	}
	for _, c := range []byte(s) {
		if strings.IndexByte(letters, c) < 0 {
			return false
		}
	}
	return true
}

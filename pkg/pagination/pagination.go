package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params is the raw paging input a handler passes to a repository.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row of a page by (created_at, id). Listings must be
// ordered by both columns ascending for cursors to stay stable.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

var errMalformedCursor = errors.New("malformed cursor")

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Keyset orders by (created_at, id), resumes after cursor when one is given
// and fetches one row past limit so Page can detect a following page.
func Keyset(cursor *Cursor, limit int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if cursor != nil {
			at := cursor.CreatedAt.UTC()
			q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", at, at, cursor.ID)
		}
		return q.Order("created_at ASC").Order("id ASC").Limit(NormalizeLimit(limit) + 1)
	}
}

// Page cuts a Keyset result to limit rows and returns the cursor of the
// last kept row, or nil on the final page.
func Page[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, nil
	}
	last := key(rows[limit-1])
	return rows[:limit], &last
}

// EncodeCursor renders an opaque token that survives a query string as is.
func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor returns nil, nil for an empty token.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, errMalformedCursor
	}
	unix, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp", errMalformedCursor)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id", errMalformedCursor)
	}
	return &Cursor{CreatedAt: time.Unix(0, unix).UTC(), ID: parsed}, nil
}

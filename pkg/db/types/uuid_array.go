package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray stores trip id lists. Postgres gets a uuid[] literal; SQLite
// keeps the same literal in a TEXT column. Scan also accepts a JSON array
// for rows written by tooling.
type UUIDArray []uuid.UUID

// NewUUIDArray copies ids in order, dropping nil and repeated entries. A
// payment or invoice never references the same trip twice.
func NewUUIDArray(ids ...uuid.UUID) UUIDArray {
	out := make(UUIDArray, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, existing := range a {
		if existing == id {
			return true
		}
	}
	return false
}

func (a *UUIDArray) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = UUIDArray{}
		return nil
	case string:
		return a.parse(v)
	case []byte:
		return a.parse(string(v))
	default:
		return fmt.Errorf("UUIDArray: unsupported Scan type %T", src)
	}
}

func (a UUIDArray) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
	b.WriteByte('}')
	return b.String(), nil
}

func (a *UUIDArray) parse(s string) error {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ids []uuid.UUID
		if err := json.Unmarshal([]byte(s), &ids); err != nil {
			return fmt.Errorf("UUIDArray: %w", err)
		}
		*a = UUIDArray(ids)
		return nil
	}
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}"))
	if body == "" {
		*a = UUIDArray{}
		return nil
	}
	raw := strings.Split(body, ",")
	out := make(UUIDArray, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(strings.Trim(r, `"`))
		if strings.EqualFold(r, "NULL") {
			return fmt.Errorf("UUIDArray: NULL element not allowed")
		}
		id, err := uuid.Parse(r)
		if err != nil {
			return fmt.Errorf("UUIDArray: parse %q: %w", r, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}

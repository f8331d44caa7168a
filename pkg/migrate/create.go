package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

var (
	unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)
	clock        = time.Now
)

// CreateSQLMigration writes an empty goose migration named
// <version>_<name>.sql into dir and returns its path. The version is the
// current UTC second, bumped past any version dir already uses.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	version, err := nextVersion(os.DirFS(dir), clock())
	if err != nil {
		return "", err
	}

	target := filepath.Join(dir, version+"_"+slug+".sql")
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, f.Close()
}

func migrationSlug(name string) string {
	return strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func nextVersion(fsys fs.FS, now time.Time) (string, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return "", fmt.Errorf("list migrations: %w", err)
	}
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		if v, ok := migrationVersion(name); ok {
			taken[v] = true
		}
	}
	at := now.UTC().Truncate(time.Second)
	for taken[at.Format(versionLayout)] {
		at = at.Add(time.Second)
	}
	return at.Format(versionLayout), nil
}

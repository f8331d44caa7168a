package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	// The payments table is an append-only ledger; corrections are new rows.
	ledgerRewriteRe = regexp.MustCompile(`(?i)\b(delete\s+from|truncate(\s+table)?)\s+("?public"?\.)?"?payments"?\b`)
)

// ValidateDir checks the migrations in dir, or the embedded set when dir is
// empty or the default directory.
func ValidateDir(dir string) error {
	fsys, err := Source(dir)
	if err != nil {
		return err
	}
	return ValidateFS(fsys)
}

// ValidateFS checks every .sql file at the root of fsys: the
// version_name.sql filename, unique versions, goose Up/Down markers in
// order, and no Up section that deletes ledger rows. All problems are
// reported together.
func ValidateFS(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	var problems error
	owners := map[string]string{}
	for _, name := range names {
		version, ok := migrationVersion(name)
		if !ok {
			problems = multierr.Append(problems, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if prev, dup := owners[version]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, version, prev))
			continue
		}
		owners[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := checkSections(string(body)); err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
		}
	}
	return problems
}

func migrationVersion(name string) (string, bool) {
	m := sqlFileRe.FindStringSubmatch(path.Base(name))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func checkSections(sql string) error {
	up, down := strings.Index(sql, upMarker), strings.Index(sql, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", upMarker)
	case down < 0:
		return fmt.Errorf("missing %q", downMarker)
	case down < up:
		return errors.New("Down section precedes Up")
	}
	if ledgerRewriteRe.MatchString(withoutComments(sql[up+len(upMarker) : down])) {
		return errors.New("Up section deletes payment ledger rows")
	}
	return nil
}

func withoutComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

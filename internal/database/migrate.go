package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// Migrate applies the schema file at path.  Statements are split on ';' and
// run in order; every statement in the file is idempotent (IF NOT EXISTS) so
// Migrate is safe on every boot.  A missing file is reported as os.ErrNotExist
// for the caller to decide whether to continue.
func Migrate(ctx context.Context, db *sql.DB, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	stmts := SplitStatements(string(raw))
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	return len(stmts), nil
}

// SplitStatements breaks a SQL script into statements, dropping "--" line
// comments and empty fragments.
func SplitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if t := strings.TrimSpace(line); strings.HasPrefix(t, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, part := range strings.Split(b.String(), ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/serroba/link-tracker/internal/analytics"
)

// ErrClickLogMissing is returned by click-log operations after the log was dropped.
var ErrClickLogMissing = errors.New("click log does not exist")

var (
	//go:embed schema/sqlite.sql
	sqliteSchema string
	//go:embed schema/postgres.sql
	postgresSchema string
)

// Migrator manages the schema of a store.
type Migrator interface {
	// Migrate creates missing tables and indexes.
	Migrate(ctx context.Context) error
	// DropClickLog removes the click log, leaving links and their counters.
	DropClickLog(ctx context.Context) error
	// Uninstall removes every table the service owns.
	Uninstall(ctx context.Context) error
}

// dimensionColumn maps a breakdown dimension to its click-log column.
func dimensionColumn(dim analytics.Dimension) (string, error) {
	if !dim.Valid() {
		return "", fmt.Errorf("unknown dimension %q", dim)
	}

	return string(dim), nil
}

// truncate cuts s to at most n runes to fit a bounded column.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}

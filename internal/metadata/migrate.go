package metadata

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// RunMigrations executes every .sql file in migrationsFS in lexical order.
// A simple forward-only runner: there is no down-migration or version table,
// matching the teacher's development-time migration approach.
func (db *DB) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("metadata: read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, entry.Name())
		if err != nil {
			return fmt.Errorf("metadata: read migration %s: %w", entry.Name(), err)
		}

		db.logger.Info("metadata: running migration", "file", entry.Name())
		if _, err := db.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("metadata: execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

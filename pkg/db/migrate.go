/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/guardian/pkg/logger"
)

const migrationsTable = "guardian_schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pendingMigrations lists the embedded .up.sql files not yet applied, in
// version order.
func pendingMigrations(fsys fs.FS, dir string, applied map[string]struct{}) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		if _, ok := applied[extractVersion(entry.Name())]; ok {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}

// RunMigrations brings the schema up to date. Each migration runs in its
// own transaction together with its tracking row.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	if pool == nil {
		return nil
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version     TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, migrationsTable)); err != nil {
		return fmt.Errorf("migrations: create tracking table: %w", err)
	}

	applied := make(map[string]struct{})

	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT version FROM %s`, migrationsTable))
	if err != nil {
		return fmt.Errorf("migrations: list applied versions: %w", err)
	}

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("migrations: scan applied version: %w", err)
		}

		applied[version] = struct{}{}
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("migrations: iterate applied versions: %w", err)
	}

	names, err := pendingMigrations(migrationsFS, "migrations", applied)
	if err != nil {
		return fmt.Errorf("migrations: read embedded migrations: %w", err)
	}

	for _, name := range names {
		if err := applyMigration(ctx, pool, name); err != nil {
			return err
		}

		log.Info().Str("migration", name).Msg("migration applied")
	}

	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, name string) error {
	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("migrations: read %s: %w", name, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrations: begin %s: %w", name, err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	for idx, stmt := range splitSQLStatements(string(content)) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrations: statement %d in %s failed: %w", idx+1, name, err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (version) VALUES ($1)`, migrationsTable), extractVersion(name)); err != nil {
		return fmt.Errorf("migrations: record %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrations: commit %s: %w", name, err)
	}

	return nil
}

package postgres

import (
	"slices"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestLoadMigrationsFromFS_NameMismatchAndDuplicates(t *testing.T) {
	t.Parallel()

	mismatch := fstest.MapFS{
		"sql/migrations/0001_orders.up.sql":   {Data: []byte("CREATE TABLE orders (id TEXT);")},
		"sql/migrations/0001_catalog.down.sql": {Data: []byte("DROP TABLE orders;")},
	}
	if _, err := loadMigrationsFromFS(mismatch); err == nil || !strings.Contains(err.Error(), "name mismatch") {
		t.Fatalf("expected name mismatch error, got %v", err)
	}

	if _, err := loadMigrationsFromFS(fstest.MapFS{}); err == nil {
		t.Fatal("expected error for empty migrations dir")
	}
}

func TestLoadMigrationsFromFS_EmbeddedSchema(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations must be valid: %v", err)
	}
	for i, m := range migrations {
		if m.Version != int64(i+1) {
			t.Fatalf("expected contiguous versions, got %s at position %d", m, i)
		}
	}
	if !strings.Contains(migrations[0].UpSQL, "orders") {
		t.Fatalf("first migration must create order tables: %s", migrations[0])
	}
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	all := []migration{
		{Version: 1, Name: "catalog_and_orders"},
		{Version: 2, Name: "timeline_and_outbox"},
		{Version: 3, Name: "idempotency_keys"},
	}

	tests := []struct {
		name      string
		applied   []int64
		direction migrationDirection
		steps     int
		want      []int64
		wantErr   bool
	}{
		{name: "up from scratch", direction: migrationUp, want: []int64{1, 2, 3}},
		{name: "up one step", direction: migrationUp, steps: 1, want: []int64{1}},
		{name: "up fills gap", applied: []int64{1, 3}, direction: migrationUp, want: []int64{2}},
		{name: "up nothing pending", applied: []int64{1, 2, 3}, direction: migrationUp},
		{name: "down latest first", applied: []int64{1, 2, 3}, direction: migrationDown, steps: 2, want: []int64{3, 2}},
		{name: "down more than applied", applied: []int64{1}, direction: migrationDown, steps: 5, want: []int64{1}},
		{name: "down on empty", direction: migrationDown, steps: 1},
		{name: "down unknown version", applied: []int64{1, 9}, direction: migrationDown, steps: 1, wantErr: true},
		{name: "unknown direction", direction: migrationDirection("sideways"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planMigrations(all, tt.applied, tt.direction, tt.steps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			got := make([]int64, 0, len(plan))
			for _, m := range plan {
				got = append(got, m.Version)
			}
			if !slices.Equal(got, tt.want) && !(len(got) == 0 && len(tt.want) == 0) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

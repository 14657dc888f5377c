package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/localtuya-core/migrations"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_devices.up.sql":    {Data: []byte("CREATE TABLE devices (id TEXT PRIMARY KEY);")},
		"20260101_000000_devices.down.sql":  {Data: []byte("DROP TABLE devices;")},
		"20260102_000000_add_name.up.sql":   {Data: []byte("ALTER TABLE devices ADD COLUMN name TEXT;")},
		"20260102_000000_add_name.down.sql": {Data: []byte("ALTER TABLE devices DROP COLUMN name;")},
		"README.md":                         {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "devices") {
		t.Fatal("devices table not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO devices (id, name) VALUES ('a', 'heater')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	// Idempotent.
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Fatalf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || applied[0].Version != "20260101_000000" {
		t.Errorf("applied = %+v, want only 20260101_000000", applied)
	}
	if len(pending) != 1 || pending[0].Name != "add_name" {
		t.Errorf("pending = %+v, want add_name", pending)
	}

	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "devices") {
		t.Error("devices table still present after full rollback")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	source := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE broken (;")},
	}
	if err := db.Migrate(ctx, source); err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}

	applied, pending, err := db.GetMigrationStatus(ctx, source)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1/1", len(applied), len(pending))
	}
}

func TestMigrateSourceEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		source  fstest.MapFS
		wantErr bool
	}{
		{name: "nil source", source: nil},
		{name: "empty source", source: fstest.MapFS{}},
		{
			name:    "down without up",
			source:  fstest.MapFS{"20260101_000000_orphan.down.sql": {Data: []byte("SELECT 1;")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			defer db.Close() //nolint:errcheck // Test cleanup

			var err error
			if tt.source == nil {
				err = db.Migrate(context.Background(), nil)
			} else {
				err = db.Migrate(context.Background(), tt.source)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Migrate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate(migrations.FS) error = %v", err)
	}
	if !tableExists(t, db, "state_history") {
		t.Fatal("state_history table not created")
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, properties, dps) VALUES ('bf01', '{}', '{}')"); err != nil {
		t.Errorf("insert with defaults: %v", err)
	}
	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		t.Fatalf("MigrateDown(migrations.FS) error = %v", err)
	}
	if tableExists(t, db, "state_history") {
		t.Error("state_history still present after rollback")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"up migration", "20260301_120000_state_history.up.sql", "20260301_120000", true, true},
		{"down migration", "20260301_120000_state_history.down.sql", "20260301_120000", false, true},
		{"not sql", "notes.txt", "", false, false},
		{"missing direction", "20260301_120000_state_history.sql", "", false, false},
		{"no version", "broken.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260301_120000_state_history.up.sql", "state_history"},
		{"20260301_120000_state_history.down.sql", "state_history"},
		{"20260402_090000_add_source_index.up.sql", "add_source_index"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

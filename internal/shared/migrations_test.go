package shared

import (
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		for _, table := range []string{"users", "playlists", "songs", "spotify_credentials"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var newCount int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount)
		if err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}
	})

	t.Run("Share Token Unique", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		insert := `INSERT INTO playlists (id, owner_id, name, provider, share_token) VALUES (?, 'u1', 'n', 'spotify', ?)`
		if _, err := db.Exec(insert, "p1", "same-token"); err != nil {
			t.Fatalf("failed to insert first playlist: %v", err)
		}
		if _, err := db.Exec(insert, "p2", "same-token"); err == nil {
			t.Error("expected duplicate share token to violate the unique index")
		}
		if _, err := db.Exec(insert, "p3", nil); err != nil {
			t.Errorf("expected multiple NULL share tokens to be allowed: %v", err)
		}
		if _, err := db.Exec(insert, "p4", nil); err != nil {
			t.Errorf("expected multiple NULL share tokens to be allowed: %v", err)
		}
	})

	t.Run("Schema Constraints", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		tests := []struct {
			name    string
			query   string
			wantErr bool
		}{
			{"known provider", `INSERT INTO playlists (id, owner_id, name, provider) VALUES ('a', 'u1', 'n', 'itunes')`, false},
			{"unknown provider", `INSERT INTO playlists (id, owner_id, name, provider) VALUES ('b', 'u1', 'n', 'youtube')`, true},
			{"unknown visibility", `INSERT INTO playlists (id, owner_id, name, provider, visibility) VALUES ('c', 'u1', 'n', 'spotify', 'friends')`, true},
			{"first credential", `INSERT INTO spotify_credentials (id, user_id, access_token, refresh_token, expires_at) VALUES ('k1', 'u1', 'a', 'r', CURRENT_TIMESTAMP)`, false},
			{"second credential for user", `INSERT INTO spotify_credentials (id, user_id, access_token, refresh_token, expires_at) VALUES ('k2', 'u1', 'a', 'r', CURRENT_TIMESTAMP)`, true},
		}
		for _, tt := range tests {
			_, err := db.Exec(tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		}
	})

	t.Run("splitStatements", func(t *testing.T) {
		script := "-- header; with semicolon\nCREATE TABLE a (x INT);\n\nCREATE TABLE b (y INT); -- trailing\n"
		stmts := splitStatements(script)
		if len(stmts) != 2 {
			t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
		}
		if stmts[0] != "CREATE TABLE a (x INT)" {
			t.Errorf("unexpected first statement %q", stmts[0])
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})
}

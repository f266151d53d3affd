package main

import (
	"io/fs"
	"strings"
	"testing"
)

func TestResolveDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envDSN, "")
	t.Setenv("LOAM_DB_HOST", "db.internal")
	t.Setenv("LOAM_DB_NAME", "loam")
	t.Setenv("LOAM_DB_USER", "loam")
	t.Setenv("LOAM_STORAGE_CONNECTION_STRING", "conn")

	got, err := resolveDSN("")
	if err != nil {
		t.Fatalf("resolve from config: %v", err)
	}
	if !strings.HasPrefix(got, "postgres://loam:@db.internal:5432/loam?") {
		t.Errorf("config dsn = %q", got)
	}

	t.Setenv(envDSN, "postgres://env@localhost/loam")
	if got, _ := resolveDSN(""); got != "postgres://env@localhost/loam" {
		t.Errorf("env dsn = %q", got)
	}

	if got, _ := resolveDSN("postgres://flag@localhost/loam"); got != "postgres://flag@localhost/loam" {
		t.Errorf("flag dsn = %q", got)
	}
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	entries, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatal(err)
	}

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e, ".up.sql"):
			ups++
		case strings.HasSuffix(e, ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("migrations: %d up, %d down", ups, downs)
	}
}

package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestList_ReturnsOnlyConformingSQLFiles(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	files, err := List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}

	if len(files) == 0 {
		t.Fatal("List() returned no migration files")
	}

	for _, f := range files {
		if !strings.HasSuffix(f, ".up.sql") && !strings.HasSuffix(f, ".down.sql") {
			t.Errorf("unexpected migration filename: %s", f)
		}
	}
}

func TestValidate_EmbeddedSetIsComplete(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if err := Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestFS_ContainsStagedRecordsMigration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	data, err := fs.ReadFile(FS(), "001_create_staged_records.up.sql")
	if err != nil {
		t.Fatalf("reading embedded migration failed: %v", err)
	}

	if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS staged_records") {
		t.Error("up migration does not create staged_records table")
	}
}

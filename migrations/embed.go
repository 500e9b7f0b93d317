// Package migrations embeds the SQL schema migrations for the staging store.
//
// Migrations are embedded at build time using go:embed for zero-config
// deployment: the service's EnsureSchema path and the migrator CLI both run
// them through golang-migrate's iofs source without external file
// dependencies. Filenames follow the strict 001_name.(up|down).sql standard;
// anything else is rejected by Validate to prevent operational mistakes.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embedded embed.FS

// Migration filename regex: 001_migration_name.up.sql or 001_migration_name.down.sql.
var filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// FS returns the embedded file system containing all migration files.
func FS() fs.FS {
	return embedded
}

// List returns all embedded migration files that conform to the naming
// standard, in lexicographic order (which matches sequence order).
func List() ([]string, error) {
	entries, err := fs.ReadDir(embedded, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && filenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate performs startup validation of the embedded migration set:
// at least one migration, every up has a matching down, and sequence numbers
// start at 1 with no gaps.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	ups := make(map[int]string)
	downs := make(map[int]string)

	for _, filename := range files {
		matches := filenameRegex.FindStringSubmatch(filename)

		seq, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("invalid sequence number in %s: %w", filename, err)
		}

		switch matches[3] {
		case "up":
			ups[seq] = filename
		case "down":
			downs[seq] = filename
		}
	}

	for seq := range ups {
		if _, ok := downs[seq]; !ok {
			return fmt.Errorf("migration %s has no matching down migration", ups[seq])
		}
	}

	for seq := range downs {
		if _, ok := ups[seq]; !ok {
			return fmt.Errorf("migration %s has no matching up migration", downs[seq])
		}
	}

	for seq := 1; seq <= len(ups); seq++ {
		if _, ok := ups[seq]; !ok {
			return fmt.Errorf("migration sequence has a gap: missing %03d", seq)
		}
	}

	return nil
}

package migrations

import (
	"fmt"
	"os"
	"path/filepath"
)

// MigrationsDir holds the schema location relative to the working directory.
// Overridable for deployments that ship migrations elsewhere.
var MigrationsDir = "scripts/migrations"

const initialSchemaFile = "001_initial_schema.sql"

// GetInitialSchema loads the initial schema SQL. The file is resolved
// relative to the working directory first, then relative to package
// directories so `go test` inside a package finds it too.
func GetInitialSchema() (string, error) {
	candidates := []string{
		filepath.Join(MigrationsDir, initialSchemaFile),
		filepath.Join("..", "..", MigrationsDir, initialSchemaFile),
		filepath.Join("..", MigrationsDir, initialSchemaFile),
	}

	for _, path := range candidates {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	return "", fmt.Errorf("could not find %s under %s", initialSchemaFile, MigrationsDir)
}

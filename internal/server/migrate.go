package server

import (
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies database migrations from the given directory.
// dir example: file://migrations
func Migrate(dir string, dsn string, direction string, steps int) error {
	if dir == "" {
		dir = "file://migrations"
	}
	if dsn == "" {
		// fall back to the same env names viper reads for storage.postgres
		dsn = os.Getenv("DOCQA_STORAGE_POSTGRES_URL")
		if dsn == "" {
			host := getEnvDefault("DOCQA_STORAGE_POSTGRES_HOST", "localhost")
			port := getEnvDefault("DOCQA_STORAGE_POSTGRES_PORT", "5432")
			user := os.Getenv("DOCQA_STORAGE_POSTGRES_USER")
			pass := os.Getenv("DOCQA_STORAGE_POSTGRES_PASSWORD")
			db := os.Getenv("DOCQA_STORAGE_POSTGRES_DBNAME")
			ssl := getEnvDefault("DOCQA_STORAGE_POSTGRES_SSLMODE", "disable")
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
		}
	}

	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
}

func getEnvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

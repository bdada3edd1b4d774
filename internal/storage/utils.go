package storage

import (
	"fmt"
	"os"
)

// ResolveConnString returns the explicit connection string when one is given,
// otherwise assembles it from the DB_* environment variables.
func ResolveConnString(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	username := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")
	if username == "" || password == "" || host == "" || port == "" || name == "" {
		return "", fmt.Errorf("database connection not configured: pass --db or set DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME")
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		username, password, host, port, name), nil
}

// InitStore resolves the connection string and opens the store.
func InitStore(dbConnStr string) (*PostgresStore, error) {
	connStr, err := ResolveConnString(dbConnStr)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(connStr)
}

// Package helpers contains the shared plumbing for Shiori's
// integration tests: a single dockerised postgres instance, provisioned
// with one isolated database per test.
package helpers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Shiori/internal/database"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	User     = "postgres"
	Password = "postgres"
	AdminDB  = "postgres"
)

var ctx = context.Background()

// databaseManager spawns a single shared postgres container on first
// use and provisions an individual database per test. Tests never share
// a database, so they cannot observe each other's rows.
type databaseManager struct {
	*sync.Mutex
	container  testcontainers.Container
	connection *sql.DB
	host       string
	port       string
}

var manager = &databaseManager{Mutex: &sync.Mutex{}}

// TestDatabase is a provisioned, migrated database dedicated to one test.
type TestDatabase struct {
	Name    string
	Manager database.Manager
	DB      *sqlx.DB
}

// RequireDatabase provisions a fresh database named for the running
// test and returns a connected (and migrated) database manager for it.
// Any failure is fatal to the test.
func RequireDatabase(t *testing.T) *TestDatabase {
	manager.Lock()
	defer manager.Unlock()

	if manager.connection == nil {
		manager.spawnPostgres(t)
		manager.connectAdmin(t)
	}

	databaseName := databaseNameFor(t)
	if _, err := manager.connection.Exec(fmt.Sprintf(`CREATE DATABASE "%s"`, databaseName)); err != nil {
		t.Fatalf("failed to provision database '%s': %s", databaseName, err)
	}

	// Connect runs the embedded goose migrations against the fresh
	// database. Connections are serialized under the manager lock as
	// goose configuration is package-global.
	conn := database.New()
	err := conn.Connect(database.DatabaseConfig{
		User:     User,
		Password: Password,
		Name:     databaseName,
		Host:     manager.host,
		Port:     manager.port,
	})
	if err != nil {
		t.Fatalf("failed to connect to provisioned database '%s': %s", databaseName, err)
	}

	t.Cleanup(func() { _ = conn.GetSqlxDb().Close() })

	return &TestDatabase{Name: databaseName, Manager: conn, DB: conn.GetSqlxDb()}
}

func (manager *databaseManager) spawnPostgres(t *testing.T) {
	postgresC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:14.1-alpine"),
		postgres.WithDatabase(AdminDB),
		postgres.WithUsername(User),
		postgres.WithPassword(Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}

	host, err := postgresC.Host(ctx)
	if err != nil {
		t.Fatalf("failed to resolve postgres container host: %s", err)
	}

	port, err := postgresC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to resolve postgres container port: %s", err)
	}

	manager.container = postgresC
	manager.host = host
	manager.port = port.Port()
}

func (manager *databaseManager) connectAdmin(t *testing.T) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		manager.host, User, Password, AdminDB, manager.port)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open postgres admin connection: %s", err)
	}

	for attempt := 1; ; attempt++ {
		if err := db.Ping(); err != nil {
			if attempt >= 5 {
				t.Fatalf("all admin connection attempts FAILED: %s", err)
			}

			time.Sleep(time.Second)
			continue
		}

		break
	}

	manager.connection = db
}

// databaseNameFor derives a postgres-friendly database name from the
// running test's name.
func databaseNameFor(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(name)
	return name
}

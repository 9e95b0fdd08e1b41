package repository_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"timeronline/backend/internal/db"
	"timeronline/backend/internal/repository"
	"timeronline/backend/internal/repository/storetest"
)

type sqliteStores struct {
	*repository.TimerRepository
	*repository.UserRepository
}

func TestSQLiteStoreContract(t *testing.T) {
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if _, err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	storetest.Run(t, sqliteStores{
		TimerRepository: repository.NewTimerRepository(database),
		UserRepository:  repository.NewUserRepository(database),
	})
}

package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/musicshare/api/internal/repository"
	"github.com/musicshare/api/pkg/database"
)

// newTestDB opens an isolated in-memory database, migrated to the full
// schema. The pool is pinned to a single connection so the shared-cache
// database survives for the whole test and concurrent transactions
// serialize the way a single Postgres row lock would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

type testEnv struct {
	db       *gorm.DB
	users    *repository.UserRepository
	otps     *repository.OtpRepository
	tokens   *repository.TokenRepository
	sessions *SessionService
	otp      *OtpService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	otps := repository.NewOtpRepository(db)
	tokens := repository.NewTokenRepository(db)

	jwtSvc := NewJWTService("test-secret", 15*time.Minute)
	sessions := NewSessionService(users, jwtSvc, 72*time.Hour)

	return &testEnv{
		db:       db,
		users:    users,
		otps:     otps,
		tokens:   tokens,
		sessions: sessions,
		otp:      NewOtpService(users, otps, sessions, nil, 0, 0),
	}
}

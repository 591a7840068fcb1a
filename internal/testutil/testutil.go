// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"glucoheart/internal/model"
	"glucoheart/internal/pkg/jwtutil"
)

// OpenDB returns a migrated in-memory SQLite database private to the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(0)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

// SeedUser inserts a user with the given role and returns it.
func SeedUser(t testing.TB, db *gorm.DB, username, role string) *model.User {
	t.Helper()

	user := &model.User{
		Username: username,
		Email:    username + "@glucoheart.test",
		Role:     role,
	}
	require.NoError(t, db.WithContext(context.Background()).Create(user).Error)
	return user
}

// IssueToken signs an HS256 bearer the way the platform's auth service
// does. Issuance is not part of this service.
func IssueToken(t testing.TB, secret string, ttl time.Duration, userID uint, username, role string) string {
	t.Helper()

	now := time.Now()
	claims := &jwtutil.Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

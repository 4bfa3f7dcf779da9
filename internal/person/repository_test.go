package person

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPersonTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"),
	)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Person{}))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func seedPerson(t *testing.T, repo PersonRepository, email string) *Person {
	t.Helper()
	p := NewPerson("Ada", "Lovelace", email, "hash", "")
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func strPtr(s string) *string { return &s }

func TestPersonRepository_CreateAndRead(t *testing.T) {
	repo := NewPersonRepository(setupPersonTestDB(t))
	ctx := context.Background()

	p := seedPerson(t, repo, "ada@school.test")
	require.NotZero(t, p.ID)

	byID, err := repo.ReadByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@school.test", byID.Email)
	assert.Equal(t, Student, byID.Role)
	assert.True(t, byID.IsActive)

	byEmail, err := repo.ReadByEmail(ctx, "ada@school.test")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byEmail.ID)

	_, err = repo.ReadByID(ctx, p.ID+100)
	assert.ErrorIs(t, err, ErrPersonNotFound)

	_, err = repo.ReadByEmail(ctx, "nobody@school.test")
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestPersonRepository_CreateDuplicateEmail(t *testing.T) {
	repo := NewPersonRepository(setupPersonTestDB(t))

	seedPerson(t, repo, "dup@school.test")

	err := repo.Create(context.Background(), NewPerson("B", "B", "dup@school.test", "hash", Teacher))
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestPersonRepository_UpdateProfile(t *testing.T) {
	repo := NewPersonRepository(setupPersonTestDB(t))
	ctx := context.Background()

	p := seedPerson(t, repo, "upd@school.test")
	dob := time.Date(2010, 5, 17, 0, 0, 0, 0, time.UTC)

	updated, err := repo.UpdateProfile(ctx, p.ID, ProfileUpdate{
		FirstName:   strPtr("Augusta"),
		Phone:       strPtr("+44 20 7946 0000"),
		DateOfBirth: &dob,
	})
	require.NoError(t, err)
	assert.Equal(t, "Augusta", updated.FirstName)
	assert.Equal(t, "Lovelace", updated.LastName)
	require.NotNil(t, updated.Phone)
	assert.Equal(t, "+44 20 7946 0000", *updated.Phone)
	require.NotNil(t, updated.DateOfBirth)
	assert.True(t, dob.Equal(*updated.DateOfBirth))

	cleared, err := repo.UpdateProfile(ctx, p.ID, ProfileUpdate{Phone: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.Phone)
	assert.Equal(t, "Augusta", cleared.FirstName)
}

func TestPersonRepository_UpdateProfileMissing(t *testing.T) {
	repo := NewPersonRepository(setupPersonTestDB(t))

	_, err := repo.UpdateProfile(context.Background(), 999, ProfileUpdate{FirstName: strPtr("x")})
	assert.ErrorIs(t, err, ErrPersonNotFound)
}

func TestPersonRepository_UpdatePasswordAndSetActive(t *testing.T) {
	repo := NewPersonRepository(setupPersonTestDB(t))
	ctx := context.Background()

	p := seedPerson(t, repo, "cred@school.test")

	require.NoError(t, repo.UpdatePassword(ctx, p.ID, "new-hash"))
	require.NoError(t, repo.SetActive(ctx, p.ID, false))

	got, err := repo.ReadByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.Password)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, repo.UpdatePassword(ctx, 999, "x"), ErrPersonNotFound)
	assert.ErrorIs(t, repo.SetActive(ctx, 999, true), ErrPersonNotFound)
}

func TestPersonRepository_Delete(t *testing.T) {
	repo := NewPersonRepository(setupPersonTestDB(t))
	ctx := context.Background()

	p := seedPerson(t, repo, "gone@school.test")

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err := repo.ReadByID(ctx, p.ID)
	assert.ErrorIs(t, err, ErrPersonNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, p.ID), ErrPersonNotFound)
}

func TestPerson_TableName(t *testing.T) {
	db := setupPersonTestDB(t)
	assert.True(t, db.Migrator().HasTable("persons"))
	assert.False(t, db.Migrator().HasTable("people"))
}

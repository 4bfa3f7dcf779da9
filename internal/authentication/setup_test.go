package authentication

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mehmetcc/school-auth-service/internal/password"
	"github.com/mehmetcc/school-auth-service/internal/person"
	"github.com/mehmetcc/school-auth-service/internal/utils"
)

const (
	testPassword    = "Secret123!"
	testNewPassword = "Better456?"
)

func setupAuthTestDB(t *testing.T) *gorm.DB {
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
	require.NoError(t, db.AutoMigrate(&person.Person{}, &RefreshTokenRecord{}))

	// One connection serializes writers; sqlite's shared cache would otherwise
	// answer concurrent transactions with SQLITE_LOCKED.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// testClock is a settable clock shared by the codec under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingHasher records how many verifications happened.
type countingHasher struct {
	password.Hasher
	verifies atomic.Int64
}

func (h *countingHasher) Verify(plaintext, hash string) bool {
	h.verifies.Add(1)
	return h.Hasher.Verify(plaintext, hash)
}

type testEnv struct {
	db      *gorm.DB
	persons person.PersonRepository
	records RecordRepository
	hasher  *countingHasher
	codec   *utils.TokenCodec
	clock   *testClock
	service AuthenticationService
}

func testTokenConfig() *utils.TokenConfig {
	return &utils.TokenConfig{
		AccessTokenSecret:  "access-secret-for-tests",
		RefreshTokenSecret: "refresh-secret-for-tests",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupAuthTestDB(t)
	persons := person.NewPersonRepository(db)
	return newTestEnvWith(t, db, persons, NewRecordRepository(db))
}

func newTestEnvWith(t *testing.T, db *gorm.DB, persons person.PersonRepository, records RecordRepository) *testEnv {
	t.Helper()
	clock := newTestClock()
	hasher := &countingHasher{Hasher: password.NewBcryptHasher(bcrypt.MinCost)}
	codec := utils.NewTokenCodec(testTokenConfig(), utils.WithClock(clock.Now))
	service, err := NewAuthenticationService(persons, records, hasher, codec, strictProfileLookup{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return &testEnv{
		db:      db,
		persons: persons,
		records: records,
		hasher:  hasher,
		codec:   codec,
		clock:   clock,
		service: service,
	}
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     email,
		Password:  testPassword,
	}
}

func (e *testEnv) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := e.service.Register(context.Background(), registerInput(email))
	require.NoError(t, err)
	return res
}

func (e *testEnv) activeRecords(t *testing.T, personID uint) int64 {
	t.Helper()
	n, err := e.records.CountActiveForPerson(context.Background(), personID)
	require.NoError(t, err)
	return n
}

package authentication

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehmetcc/school-auth-service/internal/person"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func redisStore(t *testing.T) (RecordRepository, person.PersonRepository) {
	_, client := setupRedis(t)
	persons := person.NewPersonRepository(setupAuthTestDB(t))
	return NewRedisRecordRepository(client, persons), persons
}

func TestRecordRepository_Redis(t *testing.T) {
	testRecordRepository(t, redisStore)
}

func TestRedisRecordRepository_KeysHoldDigestsOnly(t *testing.T) {
	mr, client := setupRedis(t)
	persons := person.NewPersonRepository(setupAuthTestDB(t))
	records := NewRedisRecordRepository(client, persons)
	owner := seedOwner(t, persons, "keys@school.test")

	require.NoError(t, records.Issue(context.Background(), owner.ID, "plain-token", time.Now().Add(time.Hour)))

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "plain-token")
	}
	assert.True(t, mr.Exists(redisTokenPrefix+tokenDigest("plain-token")))
	members, err := mr.Members(personKey(owner.ID))
	require.NoError(t, err)
	assert.Equal(t, []string{tokenDigest("plain-token")}, members)
}

func TestRedisRecordRepository_ExpiryFollowsClock(t *testing.T) {
	_, client := setupRedis(t)
	persons := person.NewPersonRepository(setupAuthTestDB(t))
	repo := NewRedisRecordRepository(client, persons).(*redisRecordRepository)
	owner := seedOwner(t, persons, "clock@school.test")
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, repo.Issue(ctx, owner.ID, "ticking", expiry))

	rec, err := repo.FindActiveValid(ctx, "ticking")
	require.NoError(t, err)
	assert.Equal(t, expiry.UnixMilli(), rec.ExpiresAt.UnixMilli())

	repo.now = func() time.Time { return expiry.Add(time.Second) }
	_, err = repo.FindActiveValid(ctx, "ticking")
	assert.ErrorIs(t, err, ErrRecordNotFoundByGivenToken)
	assert.ErrorIs(t, repo.Rotate(ctx, "ticking", "next", expiry.Add(time.Hour)), ErrRecordNotFoundByGivenToken)

	n, err := repo.CountActiveForPerson(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisRecordRepository_PrunesExpiredMembers(t *testing.T) {
	mr, client := setupRedis(t)
	persons := person.NewPersonRepository(setupAuthTestDB(t))
	records := NewRedisRecordRepository(client, persons)
	owner := seedOwner(t, persons, "prune@school.test")
	ctx := context.Background()

	require.NoError(t, records.Insert(ctx, owner.ID, "short", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, records.Issue(ctx, owner.ID, "fresh", time.Now().Add(time.Hour)))

	members, err := mr.Members(personKey(owner.ID))
	require.NoError(t, err)
	assert.Equal(t, []string{tokenDigest("fresh")}, members)
}

func TestRedisRecordRepository_Unreachable(t *testing.T) {
	mr, client := setupRedis(t)
	persons := person.NewPersonRepository(setupAuthTestDB(t))
	records := NewRedisRecordRepository(client, persons)
	mr.Close()

	err := records.Issue(context.Background(), 1, "t", time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresponsiveRedis)
	assert.False(t, strings.Contains(PublicMessage(err), "redis"))
}

func TestAuthenticationService_RedisStore(t *testing.T) {
	_, client := setupRedis(t)
	db := setupAuthTestDB(t)
	persons := person.NewPersonRepository(db)
	env := newTestEnvWith(t, db, persons, NewRedisRecordRepository(client, persons))
	ctx := context.Background()

	reg := env.register(t, "redis@school.test")
	pair, err := env.service.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)

	_, err = env.service.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	require.NoError(t, env.service.ChangePassword(ctx, reg.User.ID, testPassword, testNewPassword))
	_, err = env.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

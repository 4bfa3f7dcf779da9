package authentication

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mehmetcc/school-auth-service/internal/person"
)

const (
	redisTokenPrefix  = "refresh:token:"
	redisPersonPrefix = "refresh:person:"
)

var ErrUnresponsiveRedis = errors.New("error occurred while talking to redis")

// deactivateMembersLua marks every live record listed in the person set inactive and
// prunes members whose hash already expired. Expects the set key in setKey.
const deactivateMembersLua = `
for _, digest in ipairs(redis.call('SMEMBERS', setKey)) do
  local key = tokenPrefix .. digest
  if redis.call('EXISTS', key) == 1 then
    redis.call('HSET', key, 'active', '0')
  else
    redis.call('SREM', setKey, digest)
  end
end
`

const insertLua = `
redis.call('HSET', newKey, 'person_id', personID, 'expires_at', newExpiry, 'active', '1')
redis.call('PEXPIREAT', newKey, newExpiry)
redis.call('SADD', setKey, newDigest)
`

// KEYS[1] person set, KEYS[2] new token hash
// ARGV[1] person id, ARGV[2] expiry (unix ms), ARGV[3] new digest, ARGV[4] token prefix
var issueScript = redis.NewScript(`
local setKey, newKey = KEYS[1], KEYS[2]
local personID, newExpiry, newDigest, tokenPrefix = ARGV[1], ARGV[2], ARGV[3], ARGV[4]
` + deactivateMembersLua + insertLua + `
return 1
`)

// KEYS[1] old token hash, KEYS[2] new token hash
// ARGV[1] now (unix ms), ARGV[2] new expiry (unix ms), ARGV[3] new digest,
// ARGV[4] token prefix, ARGV[5] person prefix
var rotateScript = redis.NewScript(`
local oldKey, newKey = KEYS[1], KEYS[2]
local now, newExpiry, newDigest, tokenPrefix = tonumber(ARGV[1]), ARGV[2], ARGV[3], ARGV[4]
if redis.call('HGET', oldKey, 'active') ~= '1' then
  return 0
end
local expires = tonumber(redis.call('HGET', oldKey, 'expires_at'))
if not expires or expires <= now then
  return 0
end
local personID = redis.call('HGET', oldKey, 'person_id')
local setKey = ARGV[5] .. personID
redis.call('HSET', oldKey, 'active', '0')
` + deactivateMembersLua + insertLua + `
return 1
`)

// KEYS[1] token hash
var deactivateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'active', '0')
  return 1
end
return 0
`)

// KEYS[1] person set
// ARGV[1] token prefix
var deactivateAllScript = redis.NewScript(`
local setKey, tokenPrefix = KEYS[1], ARGV[1]
` + deactivateMembersLua + `
return 1
`)

type redisRecordRepository struct {
	client  *redis.Client
	persons person.PersonRepository
	now     func() time.Time
}

// NewRedisRecordRepository keeps refresh token records in Redis. Each record is a hash that
// expires with the token; a per-person set indexes the digests. The owning account is read
// from persons. The scripts derive key names at run time, so only a single Redis node is
// supported; a Cluster client would route them to the wrong slot.
func NewRedisRecordRepository(client *redis.Client, persons person.PersonRepository) RecordRepository {
	return &redisRecordRepository{client: client, persons: persons, now: time.Now}
}

func tokenKey(digest string) string {
	return redisTokenPrefix + digest
}

func personKey(personID uint) string {
	return redisPersonPrefix + strconv.FormatUint(uint64(personID), 10)
}

func (r *redisRecordRepository) Insert(ctx context.Context, personID uint, token string, expiresAt time.Time) error {
	digest := tokenDigest(token)
	key := tokenKey(digest)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"person_id", personID,
			"expires_at", expiresAt.UnixMilli(),
			"active", "1",
		)
		pipe.PExpireAt(ctx, key, expiresAt)
		pipe.SAdd(ctx, personKey(personID), digest)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}
	return nil
}

func (r *redisRecordRepository) Issue(ctx context.Context, personID uint, token string, expiresAt time.Time) error {
	digest := tokenDigest(token)
	err := issueScript.Run(ctx, r.client,
		[]string{personKey(personID), tokenKey(digest)},
		personID, expiresAt.UnixMilli(), digest, redisTokenPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}
	return nil
}

func (r *redisRecordRepository) FindActiveValid(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	digest := tokenDigest(token)
	fields, err := r.client.HGetAll(ctx, tokenKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFoundByGivenToken
	}

	record, err := parseRecord(digest, fields)
	if err != nil {
		return nil, err
	}
	if !record.Usable(r.now()) {
		return nil, ErrRecordNotFoundByGivenToken
	}

	owner, err := r.persons.ReadByID(ctx, record.PersonID)
	if errors.Is(err, person.ErrPersonNotFound) {
		return nil, ErrRecordNotFoundByGivenToken
	}
	if err != nil {
		return nil, err
	}
	if !owner.IsActive {
		return nil, ErrRecordNotFoundByGivenToken
	}
	record.Person = owner
	return record, nil
}

func (r *redisRecordRepository) Rotate(ctx context.Context, oldToken, newToken string, newExpiry time.Time) error {
	newDigest := tokenDigest(newToken)
	swapped, err := rotateScript.Run(ctx, r.client,
		[]string{tokenKey(tokenDigest(oldToken)), tokenKey(newDigest)},
		r.now().UnixMilli(), newExpiry.UnixMilli(), newDigest, redisTokenPrefix, redisPersonPrefix,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}
	if swapped != 1 {
		return ErrRecordNotFoundByGivenToken
	}
	return nil
}

func (r *redisRecordRepository) Deactivate(ctx context.Context, token string) error {
	err := deactivateScript.Run(ctx, r.client, []string{tokenKey(tokenDigest(token))}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}
	return nil
}

func (r *redisRecordRepository) DeactivateAllForPerson(ctx context.Context, personID uint) error {
	err := deactivateAllScript.Run(ctx, r.client, []string{personKey(personID)}, redisTokenPrefix).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}
	return nil
}

func (r *redisRecordRepository) CountActiveForPerson(ctx context.Context, personID uint) (int64, error) {
	digests, err := r.client.SMembers(ctx, personKey(personID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}
	if len(digests) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.SliceCmd, len(digests))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, digest := range digests {
			cmds[i] = pipe.HMGet(ctx, tokenKey(digest), "active", "expires_at")
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresponsiveRedis, err)
	}

	now := r.now()
	var count int64
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 {
			continue
		}
		active, _ := vals[0].(string)
		rawExpiry, _ := vals[1].(string)
		expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
		if err != nil {
			continue
		}
		if active == "1" && now.Before(time.UnixMilli(expiry)) {
			count++
		}
	}
	return count, nil
}

func parseRecord(digest string, fields map[string]string) (*RefreshTokenRecord, error) {
	personID, err := strconv.ParseUint(fields["person_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad person_id: %v", ErrUnresponsiveRedis, err)
	}
	expiry, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expires_at: %v", ErrUnresponsiveRedis, err)
	}
	return &RefreshTokenRecord{
		PersonID:     uint(personID),
		RefreshToken: digest,
		ExpiresAt:    time.UnixMilli(expiry).UTC(),
		IsActive:     fields["active"] == "1",
	}, nil
}

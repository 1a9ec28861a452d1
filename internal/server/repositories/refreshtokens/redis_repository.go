package refreshtokens

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	fieldJwtID       = "jwt_id"
	fieldUserID      = "user_id"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
	fieldUsed        = "used"
	fieldInvalidated = "invalidated"
)

const addScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "jwt_id", ARGV[1], "user_id", ARGV[2], "created_at", ARGV[3],
  "expires_at", ARGV[4], "used", ARGV[5], "invalidated", ARGV[6])
return 1
`

// markUsedScript returns 0 when the key is missing, 1 when it was already
// used and 2 when this call flipped the flag.
const markUsedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "used") == "1" then
  return 1
end
redis.call("HSET", KEYS[1], "used", "1")
return 2
`

var (
	addLua      = redis.NewScript(addScript)
	markUsedLua = redis.NewScript(markUsedScript)
)

// RedisRepository keeps one hash per refresh token. Lua scripts make Add
// and MarkUsed atomic on the server side.
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRepository(rdb redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisRepository) key(token string) string {
	return r.prefix + ":" + token
}

func (r *RedisRepository) Add(ctx context.Context, rt *models.RefreshToken) error {
	added, err := addLua.Run(ctx, r.rdb, []string{r.key(rt.Token)},
		rt.JwtID,
		rt.UserID,
		strconv.FormatInt(rt.CreatedAt.UnixNano(), 10),
		strconv.FormatInt(rt.ExpiresAt.UnixNano(), 10),
		formatBool(rt.Used),
		formatBool(rt.Invalidated),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if added == 0 {
		return common.ErrorAlreadyExists
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, token string) (*models.RefreshToken, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}

	created, err := parseUnixNano(fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh token record: %w", err)
	}
	expires, err := parseUnixNano(fields[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh token record: %w", err)
	}

	return &models.RefreshToken{
		Token:       token,
		JwtID:       fields[fieldJwtID],
		UserID:      fields[fieldUserID],
		CreatedAt:   created,
		ExpiresAt:   expires,
		Used:        fields[fieldUsed] == "1",
		Invalidated: fields[fieldInvalidated] == "1",
	}, nil
}

func (r *RedisRepository) MarkUsed(ctx context.Context, token string) error {
	status, err := markUsedLua.Run(ctx, r.rdb, []string{r.key(token)}).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	switch status {
	case 0:
		return common.ErrorNotFound
	case 1:
		return common.ErrRefreshTokenUsed
	case 2:
		return nil
	default:
		return fmt.Errorf("redis error: unexpected mark-used status %d", status)
	}
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseUnixNano(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

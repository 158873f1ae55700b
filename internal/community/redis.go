package community

import (
	"context"
	"fmt"

	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/go-redis/redis/v8"
)

// RedisRoles keeps each role's members in a redis set so several API nodes
// and the role consumers share one view.
type RedisRoles struct {
	client redis.UniversalClient
	logger *logger.Logger
}

func NewRedisRoles(client redis.UniversalClient, logger *logger.Logger) *RedisRoles {
	return &RedisRoles{client: client, logger: logger}
}

func roleSetKey(community types.Address, roleID int64) string {
	return fmt.Sprintf("pullpay:community:%s:role:%d", community, roleID)
}

func (r *RedisRoles) Grant(ctx context.Context, community types.Address, roleID int64, member types.Address) error {
	if err := r.client.SAdd(ctx, roleSetKey(community, roleID), member.String()).Err(); err != nil {
		return redisErr(err, "grant", community, roleID, member)
	}
	r.logger.Debugw("granted community role", "community", community, "role_id", roleID, "member", member)
	return nil
}

func (r *RedisRoles) Revoke(ctx context.Context, community types.Address, roleID int64, member types.Address) error {
	if err := r.client.SRem(ctx, roleSetKey(community, roleID), member.String()).Err(); err != nil {
		return redisErr(err, "revoke", community, roleID, member)
	}
	r.logger.Debugw("revoked community role", "community", community, "role_id", roleID, "member", member)
	return nil
}

func (r *RedisRoles) HasRole(ctx context.Context, community types.Address, roleID int64, member types.Address) (bool, error) {
	ok, err := r.client.SIsMember(ctx, roleSetKey(community, roleID), member.String()).Result()
	if err != nil {
		return false, redisErr(err, "lookup", community, roleID, member)
	}
	return ok, nil
}

func redisErr(err error, action string, community types.Address, roleID int64, member types.Address) error {
	return ierr.WithError(err).
		WithHintf("Failed to %s community role", action).
		WithReportableDetails(map[string]any{
			"community": community,
			"role_id":   roleID,
			"member":    member,
		}).
		Mark(ierr.ErrSystem)
}

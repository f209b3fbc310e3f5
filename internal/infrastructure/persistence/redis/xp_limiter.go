package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

// grantScript keeps one sorted-set entry per grant, scored by the event time
// in milliseconds. Members are "<xp>:<id>" so the window sum needs no second
// key. Runs atomically on the server.
//
// KEYS[1] grant set
// ARGV[1] event time (ms)  ARGV[2] window (ms)  ARGV[3] max XP
// ARGV[4] requested XP     ARGV[5] grant id
var grantScript = redis.NewScript(`
local key = KEYS[1]
local at = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local maxXP = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', at - window)

local used = 0
for _, member in ipairs(redis.call('ZRANGE', key, 0, -1)) do
	local xp = tonumber(string.match(member, '^(%d+):'))
	if xp then
		used = used + xp
	end
end

local allowed = maxXP - used
if allowed < 0 then
	allowed = 0
end
if requested < allowed then
	allowed = requested
end

if allowed > 0 then
	redis.call('ZADD', key, at, allowed .. ':' .. ARGV[5])
end
redis.call('PEXPIRE', key, window)
return allowed
`)

// refundScript removes the entries recorded for one grant id.
//
// KEYS[1] grant set
// ARGV[1] grant id
var refundScript = redis.NewScript(`
local suffix = ':' .. ARGV[1]
local removed = 0
for _, member in ipairs(redis.call('ZRANGE', KEYS[1], 0, -1)) do
	if string.sub(member, -string.len(suffix)) == suffix then
		removed = removed + redis.call('ZREM', KEYS[1], member)
	end
end
return removed
`)

// XPLimiter implements leveling.XPLimiter on a per-member sorted set.
type XPLimiter struct {
	client *Client
}

// NewXPLimiter creates an XPLimiter.
func NewXPLimiter(client *Client) *XPLimiter {
	return &XPLimiter{client: client}
}

// Grant implements leveling.XPLimiter.
// An empty grantID gets a random one; such a grant cannot be refunded.
func (l *XPLimiter) Grant(ctx context.Context, key leveling.MemberKey, grantID string, requested int64, at time.Time, policy leveling.RateLimitPolicy) (int64, error) {
	if requested <= 0 {
		return 0, nil
	}
	if !policy.Enabled() {
		return requested, nil
	}
	if grantID == "" {
		grantID = uuid.NewString()
	}

	allowed, err := grantScript.Run(ctx, l.client.rdb,
		[]string{l.client.limitKey(key)},
		at.UnixMilli(),
		policy.Window.Milliseconds(),
		policy.MaxXP,
		requested,
		grantID,
	).Int64()
	if err != nil {
		return 0, classify("grant xp", err)
	}
	return allowed, nil
}

// Refund implements leveling.XPLimiter.
func (l *XPLimiter) Refund(ctx context.Context, key leveling.MemberKey, grantID string) error {
	if grantID == "" {
		return nil
	}
	err := refundScript.Run(ctx, l.client.rdb, []string{l.client.limitKey(key)}, grantID).Err()
	return classify("refund xp", err)
}

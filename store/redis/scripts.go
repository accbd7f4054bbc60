package redis

import "github.com/go-redis/redis/v8"

// upsertScript implements the atomic upsert protocol of spec.md §4.B
// steps 1-4: optimistic-lock check, no-op on an already-expired
// refresh window, then a single server-side write of the session blob,
// the expiration score and the lock version, raising (never lowering)
// the shared TTL across all three collections.
//
// KEYS: sessionMap, expSet, lockMap
// ARGV: sid, newLockVersion, expectedPrevLockVersion, blob, refreshExpiresAt, now
// Returns: "CONFLICT" | "NOOP" | "OK"
var upsertScript = redis.NewScript(`
local sessionKey = KEYS[1]
local expKey = KEYS[2]
local lockKey = KEYS[3]

local sid = ARGV[1]
local newLockVersion = ARGV[2]
local expectedPrev = tonumber(ARGV[3])
local blob = ARGV[4]
local refreshExpiresAt = tonumber(ARGV[5])
local now = tonumber(ARGV[6])

local current = redis.call('HGET', lockKey, sid)
if current then
	if tonumber(current) ~= expectedPrev then
		return "CONFLICT"
	end
end

if refreshExpiresAt < now then
	return "NOOP"
end

redis.call('HSET', sessionKey, sid, blob)
redis.call('ZADD', expKey, refreshExpiresAt, sid)
redis.call('HSET', lockKey, sid, newLockVersion)

local top = redis.call('ZREVRANGE', expKey, 0, 0, 'WITHSCORES')
if top[2] then
	local targetAbs = tonumber(top[2]) * 1000
	local curPTTL = redis.call('PTTL', sessionKey)
	local curAbs = -1
	if curPTTL and curPTTL > 0 then
		curAbs = (now * 1000) + curPTTL
	end
	if curAbs < targetAbs then
		redis.call('PEXPIREAT', sessionKey, targetAbs)
		redis.call('PEXPIREAT', expKey, targetAbs)
		redis.call('PEXPIREAT', lockKey, targetAbs)
	end
end

return "OK"
`)

// deleteScript removes sid from all three collections atomically, then
// recomputes the shared TTL from whatever max score remains (spec.md
// §4.B "Delete"). If nothing remains, the three keys are left to
// disappear on their own (HDEL/ZREM of the last member already empties
// the hash/zset, which Redis removes automatically).
//
// KEYS: sessionMap, expSet, lockMap
// ARGV: sid, now
var deleteScript = redis.NewScript(`
local sessionKey = KEYS[1]
local expKey = KEYS[2]
local lockKey = KEYS[3]
local sid = ARGV[1]
local now = tonumber(ARGV[2])

redis.call('HDEL', sessionKey, sid)
redis.call('ZREM', expKey, sid)
redis.call('HDEL', lockKey, sid)

local top = redis.call('ZREVRANGE', expKey, 0, 0, 'WITHSCORES')
if top[2] then
	local targetAbs = tonumber(top[2]) * 1000
	redis.call('PEXPIREAT', sessionKey, targetAbs)
	redis.call('PEXPIREAT', expKey, targetAbs)
	redis.call('PEXPIREAT', lockKey, targetAbs)
end

return "OK"
`)

// pruneScript is the best-effort sweep of spec.md §4.B "Pruning": guard
// with a 1-hour cooldown lock, then remove every (sid, score) pair
// whose score is < now from all three collections.
//
// KEYS: sessionMap, expSet, lockMap, pruneLock
// ARGV: now, cooldownSeconds
// Returns: "SKIPPED" | number-of-pruned-sids
var pruneScript = redis.NewScript(`
local sessionKey = KEYS[1]
local expKey = KEYS[2]
local lockKey = KEYS[3]
local pruneLockKey = KEYS[4]
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])

if redis.call('SET', pruneLockKey, now, 'NX', 'EX', cooldown) == false then
	return "SKIPPED"
end

local stale = redis.call('ZRANGEBYSCORE', expKey, '-inf', now - 1)
for _, sid in ipairs(stale) do
	redis.call('HDEL', sessionKey, sid)
	redis.call('ZREM', expKey, sid)
	redis.call('HDEL', lockKey, sid)
end

return #stale
`)

package emergency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Index is the O(1) lookup side of the registry, one entry per pair.
type Index interface {
	// Put replaces the pair's entry unless it already holds a newer grant by
	// (GrantedAt, GrantID). applied is false when the write was skipped.
	Put(ctx context.Context, pair Pair, entry IndexEntry) (applied bool, err error)
	// Get returns ok=false when the pair has no entry.
	Get(ctx context.Context, pair Pair) (entry IndexEntry, ok bool, err error)
	// Delete removes the pair's entry only while it still points at grantID,
	// so revoking an old grant cannot drop its successor's entry.
	Delete(ctx context.Context, pair Pair, grantID uuid.UUID) (bool, error)
	// Scan visits every entry.
	Scan(ctx context.Context, fn func(pair Pair, entry IndexEntry) error) error
}

const (
	fieldGrantID   = "grant_id"
	fieldGrantedAt = "granted_at"
	fieldIsActive  = "is_active"
	fieldExpiresAt = "expires_at"
)

// RedisIndex stores each entry as the hash "<prefix>:<patient>:<doctor>".
// Entries of expiring grants also get a Redis TTL of expiresAt plus grace so
// lapsed rows are eventually collected; reads never depend on it.
type RedisIndex struct {
	client *redis.Client
	prefix string
	grace  time.Duration
}

func NewRedisIndex(client *redis.Client, prefix string, grace time.Duration) *RedisIndex {
	if prefix == "" {
		prefix = "access"
	}
	if grace < 0 {
		grace = 0
	}
	return &RedisIndex{client: client, prefix: prefix, grace: grace}
}

func (x *RedisIndex) key(pair Pair) string {
	return x.prefix + ":" + pair.PatientID.String() + ":" + pair.DoctorID.String()
}

func (x *RedisIndex) parseKey(key string) (Pair, bool) {
	rest, ok := strings.CutPrefix(key, x.prefix+":")
	if !ok {
		return Pair{}, false
	}
	patient, doctor, ok := strings.Cut(rest, ":")
	if !ok {
		return Pair{}, false
	}
	p, err := uuid.Parse(patient)
	if err != nil {
		return Pair{}, false
	}
	d, err := uuid.Parse(doctor)
	if err != nil {
		return Pair{}, false
	}
	return Pair{PatientID: p, DoctorID: d}, true
}

// putIfNewerScript writes the entry unless the stored one is newer.
// ARGV: grant_id, granted_at (unix us), is_active, expires_at (unix ms or ""),
// pexpireat (unix ms or "" to persist).
var putIfNewerScript = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "granted_at", "grant_id")
if cur[1] and cur[2] then
  local at, incoming = tonumber(cur[1]), tonumber(ARGV[2])
  if at and (at > incoming or (at == incoming and cur[2] > ARGV[1])) then
    return 0
  end
end
redis.call("HSET", KEYS[1], "grant_id", ARGV[1], "granted_at", ARGV[2], "is_active", ARGV[3], "expires_at", ARGV[4])
if ARGV[5] == "" then
  redis.call("PERSIST", KEYS[1])
else
  redis.call("PEXPIREAT", KEYS[1], ARGV[5])
end
return 1
`)

func (x *RedisIndex) Put(ctx context.Context, pair Pair, entry IndexEntry) (bool, error) {
	key := x.key(pair)
	expires, expireAt := "", ""
	if entry.ExpiresAt != nil {
		expires = strconv.FormatInt(entry.ExpiresAt.UnixMilli(), 10)
		expireAt = strconv.FormatInt(entry.ExpiresAt.Add(x.grace).UnixMilli(), 10)
	}
	active := "0"
	if entry.IsActive {
		active = "1"
	}

	n, err := putIfNewerScript.Run(ctx, x.client, []string{key},
		entry.GrantID.String(),
		strconv.FormatInt(entry.GrantedAt.UnixMicro(), 10),
		active,
		expires,
		expireAt,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("put access index %s: %w", key, err)
	}
	return n == 1, nil
}

func (x *RedisIndex) Get(ctx context.Context, pair Pair) (IndexEntry, bool, error) {
	key := x.key(pair)
	fields, err := x.client.HGetAll(ctx, key).Result()
	if err != nil {
		return IndexEntry{}, false, fmt.Errorf("get access index %s: %w", key, err)
	}
	if len(fields) == 0 {
		return IndexEntry{}, false, nil
	}
	entry, err := decodeEntry(fields)
	if err != nil {
		return IndexEntry{}, false, fmt.Errorf("decode access index %s: %w", key, err)
	}
	return entry, true, nil
}

var deleteIfGrantScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "grant_id") == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (x *RedisIndex) Delete(ctx context.Context, pair Pair, grantID uuid.UUID) (bool, error) {
	key := x.key(pair)
	n, err := deleteIfGrantScript.Run(ctx, x.client, []string{key}, grantID.String()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("delete access index %s: %w", key, err)
	}
	return n > 0, nil
}

func (x *RedisIndex) Scan(ctx context.Context, fn func(pair Pair, entry IndexEntry) error) error {
	iter := x.client.Scan(ctx, 0, x.prefix+":*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		pair, ok := x.parseKey(key)
		if !ok {
			continue
		}
		fields, err := x.client.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("scan access index %s: %w", key, err)
		}
		if len(fields) == 0 {
			// deleted between SCAN and HGETALL
			continue
		}
		entry, err := decodeEntry(fields)
		if err != nil {
			// unreadable rows never authorize; skip them
			continue
		}
		if err := fn(pair, entry); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan access index: %w", err)
	}
	return nil
}

func decodeEntry(fields map[string]string) (IndexEntry, error) {
	var entry IndexEntry

	id, err := uuid.Parse(fields[fieldGrantID])
	if err != nil {
		return IndexEntry{}, fmt.Errorf("grant_id: %w", err)
	}
	entry.GrantID = id
	entry.IsActive = fields[fieldIsActive] == "1"

	if raw := fields[fieldGrantedAt]; raw != "" {
		us, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return IndexEntry{}, fmt.Errorf("granted_at: %w", err)
		}
		entry.GrantedAt = time.UnixMicro(us).UTC()
	}

	if raw := fields[fieldExpiresAt]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return IndexEntry{}, fmt.Errorf("expires_at: %w", err)
		}
		t := time.UnixMilli(ms).UTC()
		entry.ExpiresAt = &t
	}
	return entry, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/pkg/domain"
)

const (
	identityKeyPrefix     = "identity:"
	submissionKeyPrefix   = "identity_submission:"
	confirmationKeyPrefix = "identity_confirmation:"
	heightKey             = "identity_ledger_height"

	// submissionTTL bounds how long an unawaited submission stays claimable.
	submissionTTL = 24 * time.Hour

	fieldPointer     = "pointer"
	fieldUpdatedAt   = "updated_at" // Unix nano
	fieldVersion     = "version"
	fieldLastUpdater = "last_updater"
	fieldKind        = "kind"
	fieldOwner       = "owner"
)

// Redis is a ledger shared across instances through Redis. Each owner's record
// is a hash; the version is bumped with HINCRBY inside the confirming transaction.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis constructs a Redis-backed ledger.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func identityKey(owner domain.Address) string {
	return identityKeyPrefix + strings.ToLower(owner.String())
}

func (r *Redis) ReadPointer(ctx context.Context, owner domain.Address) (models.Pointer, error) {
	val, err := r.client.HGet(ctx, identityKey(owner), fieldPointer).Result()
	if errors.Is(err, redis.Nil) {
		return "", registry.ErrAbsent
	}
	if err != nil {
		return "", registry.Transport("read pointer", err)
	}
	ptr := models.Pointer(val)
	if ptr.IsAbsent() {
		return "", registry.ErrAbsent
	}
	return ptr, nil
}

func (r *Redis) ReadRecord(ctx context.Context, owner domain.Address) (*models.Record, error) {
	fields, err := r.client.HGetAll(ctx, identityKey(owner)).Result()
	if err != nil {
		return nil, registry.Transport("read record", err)
	}
	if len(fields) == 0 {
		return nil, registry.ErrAbsent
	}
	return recordFromHash(fields)
}

func recordFromHash(fields map[string]string) (*models.Record, error) {
	rec := &models.Record{Pointer: models.Pointer(fields[fieldPointer])}
	if v := fields[fieldVersion]; v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, registry.Transport("read record", fmt.Errorf("parse version: %w", err))
		}
		rec.Version = n
	}
	if v := fields[fieldUpdatedAt]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, registry.Transport("read record", fmt.Errorf("parse updated_at: %w", err))
		}
		rec.UpdatedAt = time.Unix(0, n).UTC()
	}
	if v := fields[fieldLastUpdater]; v != "" {
		addr, err := domain.ParseAddress(v)
		if err != nil {
			return nil, registry.Transport("read record", fmt.Errorf("parse last_updater: %w", err))
		}
		rec.LastUpdater = addr
	}
	return rec, nil
}

// Connect binds a writer to owner. The development ledger trusts any wallet.
func (r *Redis) Connect(_ context.Context, owner domain.Address) (registry.Writer, error) {
	if owner.IsNil() {
		return nil, registry.ErrNotConnected
	}
	return &redisWriter{ledger: r, owner: owner}, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return registry.Transport("ping", err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *Redis) Close() error { return nil }

func (r *Redis) submit(ctx context.Context, sub registry.Submission) (registry.Submission, error) {
	key := submissionKeyPrefix + sub.ID
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldKind, string(sub.Kind),
		fieldOwner, sub.Owner.String(),
		fieldPointer, sub.Pointer.String(),
	)
	pipe.Expire(ctx, key, submissionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return registry.Submission{}, registry.Transport("submit", err)
	}
	return sub, nil
}

// confirmScript applies a pending submission atomically and records its
// confirmation so a repeated await returns the same result. A clear blanks
// the pointer and keeps the hash, so versions never restart.
//
// KEYS[1] submission, KEYS[2] confirmation, KEYS[3] ledger height
// ARGV[1] identity key prefix, ARGV[2] now (unix nano), ARGV[3] confirmation ttl (seconds)
var confirmScript = redis.NewScript(`
local c = redis.call('HMGET', KEYS[2], 'block', 'version', 'confirmed_at')
if c[1] then
  return {c[1], c[2], c[3]}
end
local s = redis.call('HMGET', KEYS[1], 'kind', 'owner', 'pointer')
if not s[1] then
  return false
end
local id = ARGV[1] .. string.lower(s[2])
local block = redis.call('INCR', KEYS[3])
local pointer = s[3]
if s[1] == 'clear' then
  pointer = ''
end
redis.call('HSET', id, 'pointer', pointer, 'updated_at', ARGV[2], 'last_updater', s[2])
local version = redis.call('HINCRBY', id, 'version', 1)
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[2], 'block', block, 'version', version, 'confirmed_at', ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return {tostring(block), tostring(version), ARGV[2]}
`)

func (r *Redis) await(ctx context.Context, sub registry.Submission) (registry.Confirmation, error) {
	keys := []string{
		submissionKeyPrefix + sub.ID,
		confirmationKeyPrefix + sub.ID,
		heightKey,
	}
	now := r.now().UTC().UnixNano()

	vals, err := confirmScript.Run(ctx, r.client, keys,
		identityKeyPrefix, now, int64(submissionTTL/time.Second),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return registry.Confirmation{}, unknownSubmission(sub.ID)
	}
	if err != nil {
		return registry.Confirmation{}, registry.Transport("await", err)
	}
	if len(vals) != 3 {
		return registry.Confirmation{}, registry.Transport("await", fmt.Errorf("unexpected script reply %v", vals))
	}

	block, _ := strconv.ParseUint(vals[0], 10, 64)
	version, _ := strconv.ParseUint(vals[1], 10, 64)
	at, _ := strconv.ParseInt(vals[2], 10, 64)
	return registry.Confirmation{
		SubmissionID: sub.ID,
		Block:        block,
		Version:      version,
		ConfirmedAt:  time.Unix(0, at).UTC(),
	}, nil
}

type redisWriter struct {
	ledger *Redis
	owner  domain.Address
}

func (w *redisWriter) Owner() domain.Address { return w.owner }

func (w *redisWriter) WritePointer(ctx context.Context, ptr models.Pointer) (registry.Submission, error) {
	if err := validatePointer(ptr); err != nil {
		return registry.Submission{}, err
	}
	return w.ledger.submit(ctx, newSubmission(registry.SubmissionWrite, w.owner, ptr, w.ledger.now()))
}

func (w *redisWriter) ClearPointer(ctx context.Context) (registry.Submission, error) {
	return w.ledger.submit(ctx, newSubmission(registry.SubmissionClear, w.owner, "", w.ledger.now()))
}

func (w *redisWriter) AwaitConfirmation(ctx context.Context, sub registry.Submission) (registry.Confirmation, error) {
	return w.ledger.await(ctx, sub)
}

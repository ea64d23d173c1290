package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-medical-reservation/internal/domain/entity"
	domainRepo "go-medical-reservation/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	redisHoldKeyPrefix   = "reservation:hold:"
	redisSlotKeyPrefix   = "reservation:slot:"
	redisTombKeyPrefix   = "reservation:tomb:"
	redisDoctorKeyPrefix = "reservation:doctor:"
	redisExpiryKey       = "reservation:holds:expiry"
	redisClaimPrefix     = "claim:"
)

// occupantLua defines live(current, id, now, zset): whether the slot value
// current blocks id at now. A slot value is either a hold id, whose expiry is
// its score in zset, or a booking claim "claim:<id>:<until ms>".
const occupantLua = `
	local function live(current, id, now, zset)
		if not current or current == id then
			return false
		end
		local claimID, claimUntil = string.match(current, '^claim:([^:]+):(%d+)$')
		if claimID then
			return claimID ~= id and tonumber(claimUntil) > now
		end
		local exp = redis.call('ZSCORE', zset, current)
		return exp ~= false and tonumber(exp) > now
	end
`

// createHoldScript claims the slot key for a hold.
//
// KEYS: slot, hold, expiry zset, doctor set, tomb
// ARGV: hold id, hold json, expires_at ms, now ms, px ms
//
// Returns nil when stored, or the slot value that blocks it. A stale hold it
// replaces stays in the expiry zset for the sweeper.
var createHoldScript = redis.NewScript(occupantLua + `
	local current = redis.call('GET', KEYS[1])
	if live(current, ARGV[1], tonumber(ARGV[4]), KEYS[3]) then
		return current
	end
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[5])
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[5])
	redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
	redis.call('SADD', KEYS[4], ARGV[1])
	redis.call('DEL', KEYS[5])
	return false
`)

// claimSlotScript puts a booking claim on a free slot key.
//
// KEYS: slot, expiry zset
// ARGV: claim id, claim value, now ms, px ms
var claimSlotScript = redis.NewScript(occupantLua + `
	local current = redis.call('GET', KEYS[1])
	if live(current, ARGV[1], tonumber(ARGV[3]), KEYS[2]) then
		return current
	end
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[4])
	return false
`)

// settleSlotScript deletes the slot key if it still carries the claim prefix.
//
// KEYS: slot
// ARGV: "claim:<id>:"
var settleSlotScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current and string.sub(current, 1, string.len(ARGV[1])) == ARGV[1] then
		redis.call('DEL', KEYS[1])
		return 1
	end
	return 0
`)

// removeHoldScript deletes a hold, leaving a tombstone with the outcome. A
// slot still pointing at the hold is freed, or handed to a booking claim when
// the hold was confirmed.
//
// KEYS: hold, slot, expiry zset, doctor set, tomb
// ARGV: hold id, now ms, mode (consume|release|reclaim), tomb px ms,
//       claim value, claim px ms
//
// Returns: missing | active | confirmed | released | expired
var removeHoldScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		redis.call('ZREM', KEYS[3], ARGV[1])
		redis.call('SREM', KEYS[4], ARGV[1])
		return 'missing'
	end
	local exp = tonumber(redis.call('ZSCORE', KEYS[3], ARGV[1]) or '0')
	local expired = exp <= tonumber(ARGV[2])
	local mode = ARGV[3]
	local outcome = 'released'
	if mode == 'reclaim' then
		if not expired then
			return 'active'
		end
		outcome = 'expired'
	elseif mode == 'consume' then
		if expired then
			outcome = 'expired'
		else
			outcome = 'confirmed'
		end
	end
	redis.call('DEL', KEYS[1])
	if redis.call('GET', KEYS[2]) == ARGV[1] then
		if outcome == 'confirmed' then
			redis.call('SET', KEYS[2], ARGV[5], 'PX', ARGV[6])
		else
			redis.call('DEL', KEYS[2])
		end
	end
	redis.call('ZREM', KEYS[3], ARGV[1])
	redis.call('SREM', KEYS[4], ARGV[1])
	redis.call('SET', KEYS[5], outcome, 'PX', ARGV[4])
	return outcome
`)

const (
	removeModeConsume = "consume"
	removeModeRelease = "release"
	removeModeReclaim = "reclaim"

	removeResultMissing = "missing"
	removeResultActive  = "active"
)

// redisHoldLedger stores holds in Redis. Correctness relies on the Lua
// scripts above; the PX on every key (ttl + grace) only reclaims memory if
// the sweeper is not running.
type redisHoldLedger struct {
	client       *redis.Client
	log          *logrus.Logger
	grace        time.Duration
	tombstoneTTL time.Duration
}

func NewRedisHoldLedger(client *redis.Client, log *logrus.Logger, grace, tombstoneTTL time.Duration) domainRepo.HoldLedger {
	if tombstoneTTL <= 0 {
		tombstoneTTL = defaultTombstoneTTL
	}
	return &redisHoldLedger{
		client:       client,
		log:          log,
		grace:        grace,
		tombstoneTTL: tombstoneTTL,
	}
}

func (l *redisHoldLedger) Create(ctx context.Context, hold *entity.Hold, now time.Time) error {
	payload, err := json.Marshal(hold)
	if err != nil {
		return fmt.Errorf("marshal hold %s: %w", hold.ID, err)
	}

	keys := []string{
		slotKey(hold.Key()),
		holdKey(hold.ID),
		redisExpiryKey,
		doctorHoldsKey(hold.DoctorID),
		tombKey(hold.ID),
	}
	args := []interface{}{
		hold.ID.String(),
		payload,
		hold.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		l.keyTTL(hold, now).Milliseconds(),
	}

	occupant, err := createHoldScript.Run(ctx, l.client, keys, args...).Text()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lua create hold %s: %w", hold.ID, err)
	}

	l.log.Debugf("Slot %s already held by %s", hold.Key(), occupant)
	return domainRepo.ErrSlotAlreadyHeld
}

func (l *redisHoldLedger) FindByID(ctx context.Context, id uuid.UUID) (*entity.Hold, error) {
	raw, err := l.client.Get(ctx, holdKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hold %s: %w", id, err)
	}
	return decodeHold(raw)
}

func (l *redisHoldLedger) FindActive(ctx context.Context, key entity.SlotKey, now time.Time) (*entity.Hold, error) {
	rawID, err := l.client.Get(ctx, slotKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", key, err)
	}

	if strings.HasPrefix(rawID, redisClaimPrefix) {
		return nil, nil
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("slot %s points at malformed hold id %q: %w", key, rawID, err)
	}

	hold, err := l.FindByID(ctx, id)
	if err != nil || hold == nil {
		return nil, err
	}
	if !hold.IsActive(now) {
		return nil, nil
	}
	return hold, nil
}

func (l *redisHoldLedger) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]entity.Hold, error) {
	setKey := doctorHoldsKey(doctorID)
	ids, err := l.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list holds of doctor %s: %w", doctorID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisHoldKeyPrefix + id
	}
	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load holds of doctor %s: %w", doctorID, err)
	}

	var holds []entity.Hold
	var gone []interface{}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			gone = append(gone, ids[i])
			continue
		}
		hold, err := decodeHold([]byte(raw))
		if err != nil {
			l.log.Warnf("Skipping malformed hold %s: %+v", ids[i], err)
			continue
		}
		if hold.IsActive(now) {
			holds = append(holds, *hold)
		}
	}

	if len(gone) > 0 {
		if err := l.client.SRem(ctx, setKey, gone...).Err(); err != nil {
			l.log.Warnf("Failed to prune stale holds of doctor %s: %+v", doctorID, err)
		}
	}
	return holds, nil
}

func (l *redisHoldLedger) Consume(ctx context.Context, id, holderID uuid.UUID, now, claimUntil time.Time) (*entity.Hold, error) {
	hold, err := l.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, l.missingErr(ctx, id)
	}
	if !hold.IsOwnedBy(holderID) {
		return nil, domainRepo.ErrHoldNotOwned
	}

	result, err := l.remove(ctx, hold, now, removeModeConsume, claimValue(id, claimUntil), l.claimTTL(claimUntil, now))
	if err != nil {
		return nil, err
	}

	switch entity.HoldOutcome(result) {
	case entity.HoldOutcomeConfirmed:
		return hold, nil
	case entity.HoldOutcomeExpired:
		return nil, domainRepo.ErrHoldExpired
	}
	// removed by someone else between the read and the script
	return nil, l.missingErr(ctx, id)
}

func (l *redisHoldLedger) Release(ctx context.Context, id, holderID uuid.UUID, now time.Time) (*entity.Hold, error) {
	hold, err := l.FindByID(ctx, id)
	if err != nil || hold == nil {
		return nil, err
	}
	if !hold.IsOwnedBy(holderID) {
		return nil, domainRepo.ErrHoldNotOwned
	}

	result, err := l.remove(ctx, hold, now, removeModeRelease, "", 0)
	if err != nil {
		return nil, err
	}
	if result == removeResultMissing {
		return nil, nil
	}
	return hold, nil
}

func (l *redisHoldLedger) Restore(ctx context.Context, hold *entity.Hold, now time.Time) error {
	return l.Create(ctx, hold, now)
}

func (l *redisHoldLedger) Claim(ctx context.Context, key entity.SlotKey, claimID uuid.UUID, now, until time.Time) error {
	keys := []string{slotKey(key), redisExpiryKey}
	args := []interface{}{
		claimID.String(),
		claimValue(claimID, until),
		now.UnixMilli(),
		l.claimTTL(until, now).Milliseconds(),
	}

	occupant, err := claimSlotScript.Run(ctx, l.client, keys, args...).Text()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lua claim slot %s: %w", key, err)
	}

	l.log.Debugf("Slot %s not claimable, occupied by %s", key, occupant)
	return domainRepo.ErrSlotAlreadyHeld
}

func (l *redisHoldLedger) Settle(ctx context.Context, key entity.SlotKey, claimID uuid.UUID) error {
	prefix := redisClaimPrefix + claimID.String() + ":"
	if err := settleSlotScript.Run(ctx, l.client, []string{slotKey(key)}, prefix).Err(); err != nil {
		return fmt.Errorf("lua settle slot %s: %w", key, err)
	}
	return nil
}

func (l *redisHoldLedger) ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	members, err := l.client.ZRangeByScore(ctx, redisExpiryKey, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("range expired holds: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			l.log.Warnf("Dropping malformed hold id %q from expiry index", member)
			if err := l.client.ZRem(ctx, redisExpiryKey, member).Err(); err != nil {
				l.log.Warnf("Failed to drop malformed hold id %q from expiry index: %+v", member, err)
			}
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (l *redisHoldLedger) Reclaim(ctx context.Context, id uuid.UUID, now time.Time) (*entity.Hold, error) {
	hold, err := l.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		// record already gone through its PX, only the index entry is left
		if err := l.client.ZRem(ctx, redisExpiryKey, id.String()).Err(); err != nil {
			return nil, fmt.Errorf("drop expiry entry %s: %w", id, err)
		}
		return nil, nil
	}

	result, err := l.remove(ctx, hold, now, removeModeReclaim, "", 0)
	if err != nil {
		return nil, err
	}
	if entity.HoldOutcome(result) != entity.HoldOutcomeExpired {
		return nil, nil
	}
	return hold, nil
}

func (l *redisHoldLedger) remove(ctx context.Context, hold *entity.Hold, now time.Time, mode, claim string, claimTTL time.Duration) (string, error) {
	keys := []string{
		holdKey(hold.ID),
		slotKey(hold.Key()),
		redisExpiryKey,
		doctorHoldsKey(hold.DoctorID),
		tombKey(hold.ID),
	}
	args := []interface{}{
		hold.ID.String(),
		now.UnixMilli(),
		mode,
		l.tombstoneTTL.Milliseconds(),
		claim,
		claimTTL.Milliseconds(),
	}

	result, err := removeHoldScript.Run(ctx, l.client, keys, args...).Text()
	if err != nil {
		return "", fmt.Errorf("lua %s hold %s: %w", mode, hold.ID, err)
	}
	return result, nil
}

func (l *redisHoldLedger) missingErr(ctx context.Context, id uuid.UUID) error {
	outcome, err := l.client.Get(ctx, tombKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return domainRepo.ErrHoldNotFound
	}
	if err != nil {
		return fmt.Errorf("get tombstone %s: %w", id, err)
	}
	return outcomeErr(entity.HoldOutcome(outcome))
}

// keyTTL keeps the keys around a little past expiry so the sweeper, not
// Redis, decides when a hold is gone.
func (l *redisHoldLedger) keyTTL(hold *entity.Hold, now time.Time) time.Duration {
	ttl := hold.ExpiresAt.Sub(now) + l.grace
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

// claimTTL is the PX of a claim key; liveness is decided by the until in
// its value.
func (l *redisHoldLedger) claimTTL(until, now time.Time) time.Duration {
	ttl := until.Sub(now) + l.grace
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func claimValue(id uuid.UUID, until time.Time) string {
	return redisClaimPrefix + id.String() + ":" + strconv.FormatInt(until.UnixMilli(), 10)
}

func decodeHold(raw []byte) (*entity.Hold, error) {
	var hold entity.Hold
	if err := json.Unmarshal(raw, &hold); err != nil {
		return nil, fmt.Errorf("unmarshal hold: %w", err)
	}
	return &hold, nil
}

func holdKey(id uuid.UUID) string {
	return redisHoldKeyPrefix + id.String()
}

func slotKey(key entity.SlotKey) string {
	return redisSlotKeyPrefix + key.String()
}

func tombKey(id uuid.UUID) string {
	return redisTombKeyPrefix + id.String()
}

func doctorHoldsKey(doctorID uuid.UUID) string {
	return redisDoctorKeyPrefix + doctorID.String() + ":holds"
}

package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"arena/internal/common/cache"
)

const (
	snapshotRowsKeyPrefix  = "leaderboard:rows:"
	snapshotOrderKeyPrefix = "leaderboard:order:"
	defaultSnapshotTTL     = 30 * 24 * time.Hour
)

var (
	ErrSnapshotNotFound = errors.New("leaderboard snapshot not found")
)

// SnapshotRepository persists leaderboard snapshots to Redis so standings
// survive restarts and remain readable by other services after the
// contest is gone from memory. Each contest keeps a hash of row payloads
// plus a sorted set ordering participants by rank.
type SnapshotRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewSnapshotRepository creates a snapshot repository with the default TTL.
func NewSnapshotRepository(cacheClient cache.Cache) *SnapshotRepository {
	return &SnapshotRepository{cache: cacheClient, ttl: defaultSnapshotTTL}
}

// Save stores the given rows as the persisted snapshot for a contest,
// replacing any previous snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, contestID int64, rows []Row) error {
	if r.cache == nil {
		return errors.New("cache is required")
	}
	rowsKey := snapshotRowsKey(contestID)
	orderKey := snapshotOrderKey(contestID)

	if err := r.cache.Del(ctx, rowsKey, orderKey); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	members := make([]cache.ZMember, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return err
		}
		field := strconv.FormatInt(row.ParticipantID, 10)
		if err := r.cache.HSet(ctx, rowsKey, field, string(payload)); err != nil {
			return err
		}
		// Rank ascending reads back as descending score.
		members = append(members, cache.ZMember{Score: float64(-row.Rank), Member: field})
	}
	if err := r.cache.ZAdd(ctx, orderKey, members...); err != nil {
		return err
	}
	if r.ttl > 0 {
		_ = r.cache.Expire(ctx, rowsKey, r.ttl)
		_ = r.cache.Expire(ctx, orderKey, r.ttl)
	}
	return nil
}

// Load reads back a persisted snapshot in rank order.
func (r *SnapshotRepository) Load(ctx context.Context, contestID int64) ([]Row, error) {
	if r.cache == nil {
		return nil, errors.New("cache is required")
	}
	orderKey := snapshotOrderKey(contestID)
	total, err := r.cache.ZCard(ctx, orderKey)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, ErrSnapshotNotFound
	}

	members, err := r.cache.ZRevRangeWithScores(ctx, orderKey, 0, total-1)
	if err != nil {
		return nil, err
	}
	fields, err := r.cache.HGetAll(ctx, snapshotRowsKey(contestID))
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(members))
	for _, m := range members {
		payload, ok := fields[m.Member]
		if !ok {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RemoveParticipant drops one participant from a persisted snapshot.
func (r *SnapshotRepository) RemoveParticipant(ctx context.Context, contestID, participantID int64) error {
	if r.cache == nil {
		return errors.New("cache is required")
	}
	field := strconv.FormatInt(participantID, 10)
	if err := r.cache.HDel(ctx, snapshotRowsKey(contestID), field); err != nil {
		return err
	}
	return r.cache.ZRem(ctx, snapshotOrderKey(contestID), field)
}

func snapshotRowsKey(contestID int64) string {
	return snapshotRowsKeyPrefix + strconv.FormatInt(contestID, 10)
}

func snapshotOrderKey(contestID int64) string {
	return snapshotOrderKeyPrefix + strconv.FormatInt(contestID, 10)
}

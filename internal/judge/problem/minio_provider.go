package problem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"arena/internal/common/storage"
	appErr "arena/pkg/errors"
)

const (
	defaultJudgeDataTTL   = 15 * time.Minute
	defaultMaxCached      = 128
	defaultMaxPackedBytes = 64 << 20
)

type providerEntry struct {
	data      *JudgeData
	expiresAt time.Time
}

// MinIOProvider loads zstd-compressed judge bundles from object storage
// and keeps decoded bundles in memory with TTL and LRU eviction.
type MinIOProvider struct {
	storage    storage.ObjectStorage
	bucket     string
	ttl        time.Duration
	maxCached  int
	maxPacked  int64
	mu         sync.Mutex
	entries    map[int64]*providerEntry
	lruKeys    []int64
}

// MinIOProviderConfig configures a MinIOProvider.
type MinIOProviderConfig struct {
	Storage        storage.ObjectStorage
	Bucket         string
	TTL            time.Duration
	MaxCached      int
	MaxPackedBytes int64
}

// NewMinIOProvider creates a provider backed by object storage.
func NewMinIOProvider(cfg MinIOProviderConfig) (*MinIOProvider, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultJudgeDataTTL
	}
	if cfg.MaxCached <= 0 {
		cfg.MaxCached = defaultMaxCached
	}
	if cfg.MaxPackedBytes <= 0 {
		cfg.MaxPackedBytes = defaultMaxPackedBytes
	}
	return &MinIOProvider{
		storage:   cfg.Storage,
		bucket:    cfg.Bucket,
		ttl:       cfg.TTL,
		maxCached: cfg.MaxCached,
		maxPacked: cfg.MaxPackedBytes,
		entries:   make(map[int64]*providerEntry),
	}, nil
}

// GetJudgeData returns the judge bundle for a problem, from cache when fresh.
func (p *MinIOProvider) GetJudgeData(ctx context.Context, problemID int64) (*JudgeData, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	if data := p.hit(problemID); data != nil {
		return data, nil
	}

	data, err := p.fetch(ctx, problemID)
	if err != nil {
		return nil, err
	}
	p.add(problemID, data)
	return data, nil
}

func (p *MinIOProvider) hit(problemID int64) *JudgeData {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[problemID]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		p.removeLocked(problemID)
		return nil
	}
	p.touchLocked(problemID)
	return entry.data
}

func (p *MinIOProvider) fetch(ctx context.Context, problemID int64) (*JudgeData, error) {
	key := judgeDataKey(problemID)

	stat, err := p.storage.StatObject(ctx, p.bucket, key)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProblemNotFound, "stat judge data failed for problem %d", problemID)
	}
	if stat.SizeBytes > p.maxPacked {
		return nil, appErr.Newf(appErr.JudgeSystemError, "judge data for problem %d exceeds size limit", problemID)
	}

	reader, err := p.storage.GetObject(ctx, p.bucket, key)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProblemNotFound, "download judge data failed for problem %d", problemID)
	}
	defer reader.Close()

	zstdReader, err := zstd.NewReader(reader)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create zstd reader failed")
	}
	defer zstdReader.Close()

	raw, err := io.ReadAll(io.LimitReader(zstdReader, p.maxPacked*8))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "decompress judge data failed")
	}

	var data JudgeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "decode judge data failed")
	}
	if len(data.Cases) == 0 {
		return nil, appErr.Newf(appErr.JudgeSystemError, "judge data for problem %d has no test cases", problemID)
	}
	if data.CompareMode == "" {
		data.CompareMode = CompareExact
	}
	data.ProblemID = problemID
	return &data, nil
}

func (p *MinIOProvider) add(problemID int64, data *JudgeData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[problemID] = &providerEntry{
		data:      data,
		expiresAt: time.Now().Add(p.ttl),
	}
	p.touchLocked(problemID)
	for len(p.entries) > p.maxCached && len(p.lruKeys) > 0 {
		oldest := p.lruKeys[0]
		p.lruKeys = p.lruKeys[1:]
		delete(p.entries, oldest)
	}
}

func (p *MinIOProvider) touchLocked(problemID int64) {
	for i, k := range p.lruKeys {
		if k == problemID {
			p.lruKeys = append(p.lruKeys[:i], p.lruKeys[i+1:]...)
			break
		}
	}
	p.lruKeys = append(p.lruKeys, problemID)
}

func (p *MinIOProvider) removeLocked(problemID int64) {
	delete(p.entries, problemID)
	for i, k := range p.lruKeys {
		if k == problemID {
			p.lruKeys = append(p.lruKeys[:i], p.lruKeys[i+1:]...)
			break
		}
	}
}

func judgeDataKey(problemID int64) string {
	return fmt.Sprintf("problems/%d/judge.json.zst", problemID)
}

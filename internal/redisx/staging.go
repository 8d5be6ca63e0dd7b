package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
)

// StagingStore keeps a copy of every add-to-cart request in a per (user,
// product) set. Each request is one member, the JSON array of its lines, so
// repeating an identical request collapses; the key expires after TTLStaging.
type StagingStore struct {
	rdb redis.Cmdable
}

func NewStagingStore(rdb redis.Cmdable) *StagingStore {
	return &StagingStore{rdb: rdb}
}

func (s *StagingStore) Stage(ctx context.Context, userID, productID string, lines []domain.Line) error {
	if len(lines) == 0 {
		return nil
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyStagedLine, userID, productID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, string(b))
		p.Expire(ctx, key, TTLStaging)
		return nil
	})
	return err
}

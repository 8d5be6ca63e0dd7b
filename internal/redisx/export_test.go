package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
)

// staged decodes every request recorded for (user, product).
func (s *StagingStore) staged(ctx context.Context, userID, productID string) ([][]domain.Line, error) {
	raw, err := s.rdb.SMembers(ctx, fmt.Sprintf(KeyStagedLine, userID, productID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]domain.Line, 0, len(raw))
	for _, r := range raw {
		var lines []domain.Line
		if err := json.Unmarshal([]byte(r), &lines); err != nil {
			return nil, fmt.Errorf("decode staged request: %w", err)
		}
		out = append(out, lines)
	}
	return out, nil
}

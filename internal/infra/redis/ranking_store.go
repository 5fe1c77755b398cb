package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"quiz-ranking-service/internal/domain"
)

const maxApplyRetries = 16

// RankingStore keeps one hash per period (ranking:{periodID}, field per participant) and a list
// ranking:{periodID}:order recording first appearance. Apply is an optimistic WATCH transaction.
type RankingStore struct {
	client *redis.Client
}

func NewRankingStore(client *redis.Client) *RankingStore {
	return &RankingStore{client: client}
}

func (s *RankingStore) Apply(ctx context.Context, periodID string, update domain.StatUpdate) (domain.PeriodStat, error) {
	key := s.key(periodID)
	var out domain.PeriodStat

	txf := func(tx *redis.Tx) error {
		var stat domain.PeriodStat
		raw, err := tx.HGet(ctx, key, update.ParticipantID).Bytes()
		isNew := errors.Is(err, redis.Nil)
		switch {
		case isNew:
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &stat); err != nil {
				return fmt.Errorf("decode stat: %w", err)
			}
		}

		if err := stat.Apply(update); err != nil {
			return err
		}
		encoded, err := json.Marshal(stat)
		if err != nil {
			return fmt.Errorf("encode stat: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, update.ParticipantID, encoded)
			if isNew {
				pipe.RPush(ctx, s.orderKey(periodID), update.ParticipantID)
			}
			return nil
		})
		if err == nil {
			out = stat
		}
		return err
	}

	for i := 0; i < maxApplyRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.PeriodStat{}, err
		}
		return out, nil
	}
	return domain.PeriodStat{}, fmt.Errorf("apply ranking update for %s: too much contention", periodID)
}

func (s *RankingStore) Stats(ctx context.Context, periodID string) ([]domain.PeriodStat, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(periodID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list period %s: %w", periodID, err)
	}
	if len(ids) == 0 {
		return []domain.PeriodStat{}, nil
	}
	values, err := s.client.HMGet(ctx, s.key(periodID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load period %s: %w", periodID, err)
	}
	out := make([]domain.PeriodStat, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var stat domain.PeriodStat
		if err := json.Unmarshal([]byte(raw), &stat); err != nil {
			return nil, fmt.Errorf("decode stat: %w", err)
		}
		out = append(out, stat)
	}
	return out, nil
}

func (s *RankingStore) key(periodID string) string {
	return "ranking:" + periodID
}

func (s *RankingStore) orderKey(periodID string) string {
	return "ranking:" + periodID + ":order"
}

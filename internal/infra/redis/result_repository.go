package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"quiz-ranking-service/internal/domain"
)

const (
	profilesKey     = "participants"
	profileOrderKey = "participants:order"
)

// claimAttempt records the attempt and appends it to the completion list in one step.
// KEYS: attempts hash, results list. ARGV: participant id, result json. Returns 1 when claimed.
var claimAttempt = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
return 1
`)

// upsertProfile writes the profile and records first-seen order for new participants.
// KEYS: profiles hash, order list. ARGV: participant id, profile json.
var upsertProfile = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
else
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
end
return 1
`)

// ResultRepository stores results in Redis.
//
//	HSETNX results:{code}:attempts {participantID} {result json}  single attempt guard
//	RPUSH  results:{code} {result json}                            completion order
//	HSET   participants {participantID} {profile json}
//	RPUSH  participants:order {participantID}                      first-seen order
//
// The guard and the append run together in one script, as do the two profile writes.
type ResultRepository struct {
	client *redis.Client
}

func NewResultRepository(client *redis.Client) *ResultRepository {
	return &ResultRepository{client: client}
}

func (r *ResultRepository) Find(ctx context.Context, code, participantID string) (domain.Result, bool, error) {
	raw, err := r.client.HGet(ctx, r.attemptsKey(code), participantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Result{}, false, nil
	}
	if err != nil {
		return domain.Result{}, false, fmt.Errorf("find result: %w", err)
	}
	result, err := decodeResult(raw)
	if err != nil {
		return domain.Result{}, false, err
	}
	return result, true, nil
}

func (r *ResultRepository) Append(ctx context.Context, result domain.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	won, err := claimAttempt.Run(ctx, r.client,
		[]string{r.attemptsKey(result.QuizCode), r.resultsKey(result.QuizCode)},
		result.ParticipantID, raw,
	).Int()
	if err != nil {
		return fmt.Errorf("claim attempt: %w", err)
	}
	if won == 0 {
		prior, ok, err := r.Find(ctx, result.QuizCode, result.ParticipantID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyAttempted
		}
		return &domain.AlreadyAttemptedError{Prior: prior}
	}
	return nil
}

func (r *ResultRepository) Results(ctx context.Context, code string) ([]domain.Result, error) {
	items, err := r.client.LRange(ctx, r.resultsKey(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	out := make([]domain.Result, 0, len(items))
	for _, item := range items {
		result, err := decodeResult([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, nil
}

func (r *ResultRepository) UpsertProfile(ctx context.Context, profile domain.ParticipantProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := upsertProfile.Run(ctx, r.client, []string{profilesKey, profileOrderKey}, profile.ParticipantID, raw).Err(); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

func (r *ResultRepository) Profiles(ctx context.Context) ([]domain.ParticipantProfile, error) {
	ids, err := r.client.LRange(ctx, profileOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if len(ids) == 0 {
		return []domain.ParticipantProfile{}, nil
	}
	values, err := r.client.HMGet(ctx, profilesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	out := make([]domain.ParticipantProfile, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var profile domain.ParticipantProfile
		if err := json.Unmarshal([]byte(s), &profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		out = append(out, profile)
	}
	return out, nil
}

func (r *ResultRepository) attemptsKey(code string) string {
	return "results:" + code + ":attempts"
}

func (r *ResultRepository) resultsKey(code string) string {
	return "results:" + code
}

func decodeResult(raw []byte) (domain.Result, error) {
	var result domain.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

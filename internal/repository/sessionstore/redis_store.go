// internal/repository/sessionstore/redis_store.go
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chargecast-service/internal/domain/activity"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "liveactivity:session:"
	sessionIndexKey  = "liveactivity:sessions"
)

// RedisStore is the durable shared backing: one JSON record per activity
// plus an index set of known activity IDs for enumeration. Recommended
// for any multi-instance deployment.
type RedisStore struct {
	client *redis.Client
	nowFn  func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, nowFn: time.Now}
}

func (r *RedisStore) Save(ctx context.Context, session *activity.Session) error {
	copied := *session
	copied.LastUpdatedAt = r.nowFn()

	data, err := json.Marshal(&copied)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ActivityID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	if err := r.client.SAdd(ctx, sessionIndexKey, session.ActivityID).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

func (r *RedisStore) UpdateState(ctx context.Context, activityID string, state activity.ChargeState) (bool, error) {
	session, err := r.Get(ctx, activityID)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}

	session.State = state
	return true, r.Save(ctx, session)
}

func (r *RedisStore) SetPushToken(ctx context.Context, activityID, pushToken string) error {
	session, err := r.Get(ctx, activityID)
	if err != nil || session == nil {
		return err
	}

	session.PushToken = pushToken
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	// Write directly so LastUpdatedAt keeps its stored value.
	return r.client.Set(ctx, r.sessionKey(activityID), data, 0).Err()
}

func (r *RedisStore) Get(ctx context.Context, activityID string) (*activity.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(activityID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session activity.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisStore) Remove(ctx context.Context, activityID string) error {
	if err := r.client.Del(ctx, r.sessionKey(activityID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return r.client.SRem(ctx, sessionIndexKey, activityID).Err()
}

func (r *RedisStore) ListActive(ctx context.Context, staleAfter time.Duration) ([]*activity.Session, int, error) {
	ids, err := r.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to enumerate sessions: %w", err)
	}

	now := r.nowFn()
	live := make([]*activity.Session, 0, len(ids))
	pruned := 0

	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if err != nil {
			return nil, pruned, err
		}
		if session == nil {
			// Index entry outlived its record; repair the index.
			_ = r.client.SRem(ctx, sessionIndexKey, id).Err()
			continue
		}
		if session.Age(now) >= staleAfter {
			if err := r.Remove(ctx, id); err != nil {
				return nil, pruned, err
			}
			pruned++
			continue
		}
		live = append(live, session)
	}
	return live, pruned, nil
}

func (r *RedisStore) sessionKey(activityID string) string {
	return sessionKeyPrefix + activityID
}

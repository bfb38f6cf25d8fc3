// README: Rider last-location store backed by Redis GEO and a hash of raw pings.
package presence

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"deliverd/internal/types"
)

const (
	riderGeoKey  = "presence:riders"
	riderPingKey = "presence:rider_pings"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) SetLocation(ctx context.Context, p Ping) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, riderGeoKey, &redis.GeoLocation{
		Name:      string(p.RiderID),
		Longitude: p.Position.Lng,
		Latitude:  p.Position.Lat,
	})
	pipe.HSet(ctx, riderPingKey, string(p.RiderID), body)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetLocation(ctx context.Context, riderID types.ID) (Ping, bool, error) {
	val, err := s.redis.HGet(ctx, riderPingKey, string(riderID)).Result()
	if err == redis.Nil {
		return Ping{}, false, nil
	}
	if err != nil {
		return Ping{}, false, err
	}
	var p Ping
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return Ping{}, false, err
	}
	return p, true, nil
}

func (s *Store) RemoveRider(ctx context.Context, riderID types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, riderGeoKey, string(riderID))
	pipe.HDel(ctx, riderPingKey, string(riderID))
	_, err := pipe.Exec(ctx)
	return err
}

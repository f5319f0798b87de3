package sources

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/panorama-game/rating-server/internal/ranking"
)

// Hash fields read from every player hash
const (
	redisFieldNickname      = "nickname"
	redisFieldRating        = "rating"
	redisFieldMatchesNumber = "matches_number"
	redisFieldLogin         = "login"
	redisFieldID            = "id"
)

// redisSource reads players stored as hashes. setKey holds the ids of all
// players; the player with id N is stored under keyPrefix+N.
type redisSource struct {
	client    redis.UniversalClient
	setKey    string
	keyPrefix string
}

var _ RankingSource = (*redisSource)(nil)

// NewRedisSource creates a source reading through client
func NewRedisSource(client redis.UniversalClient, setKey, keyPrefix string) RankingSource {
	return &redisSource{
		client:    client,
		setKey:    setKey,
		keyPrefix: keyPrefix,
	}
}

// Name returns the source name
func (*redisSource) Name() string {
	return "redis"
}

// FetchAll reads the id set and fetches all hashes in one pipeline
func (s *redisSource) FetchAll(ctx context.Context) ([]ranking.Record, error) {
	ids, err := s.client.SMembers(ctx, s.setKey).Result()
	if err != nil {
		return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("failed to read %s: %w", s.setKey, err))
	}
	if len(ids) == 0 {
		return []ranking.Record{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.keyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("failed to read player hashes: %w", err))
	}

	records := make([]ranking.Record, 0, len(ids))
	for i, cmd := range cmds {
		record, err := recordFromHash(i, cmd.Val())
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", ids[i], err)
		}
		records = append(records, record)
	}

	return records, nil
}

// Close closes the redis client
func (s *redisSource) Close() error {
	return s.client.Close()
}

// recordFromHash converts the player hash at index into a record.
// Absent fields stay nil; a present numeric field that does not parse
// is a *ranking.MalformedRecordError.
func recordFromHash(index int, fields map[string]string) (ranking.Record, error) {
	var record ranking.Record

	if v, ok := fields[redisFieldNickname]; ok {
		record.Nickname = &v
	}
	if v, ok := fields[redisFieldLogin]; ok {
		record.Login = &v
	}

	for _, f := range []struct {
		name   string
		target **int64
	}{
		{redisFieldRating, &record.Rating},
		{redisFieldMatchesNumber, &record.MatchesNumber},
		{redisFieldID, &record.ID},
	} {
		v, ok := fields[f.name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ranking.Record{}, &ranking.MalformedRecordError{
				Index:  index,
				Field:  f.name,
				Reason: fmt.Sprintf("is not an integer: %q", v),
			}
		}
		*f.target = &n
	}

	return record, nil
}

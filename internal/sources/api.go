package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/panorama-game/rating-server/internal/httpclient"
	"github.com/panorama-game/rating-server/internal/ranking"
)

const (
	// apiMaxAttempts bounds the requests made for one fetch
	apiMaxAttempts       = 3
	apiRetryInitialDelay = 100 * time.Millisecond
)

// apiSource fetches a JSON players document from an HTTP endpoint
type apiSource struct {
	endpoint string
	client   httpclient.Client
}

var _ RankingSource = (*apiSource)(nil)

// NewAPISource creates a source that GETs endpoint through client
func NewAPISource(endpoint string, client httpclient.Client) RankingSource {
	return &apiSource{
		endpoint: endpoint,
		client:   client,
	}
}

// Name returns the source name
func (*apiSource) Name() string {
	return "api"
}

// FetchAll downloads and decodes the players document.
// Temporary HTTP failures are retried within the same fetch.
func (s *apiSource) FetchAll(ctx context.Context) ([]ranking.Record, error) {
	data, err := s.get(ctx)
	if err != nil {
		return nil, ranking.NewDataAccessError(s.Name(), err)
	}

	records, err := decodeJSONPlayers(data)
	if errors.Is(err, errDocument) {
		return nil, ranking.NewDataAccessError(s.Name(), fmt.Errorf("failed to decode response: %w", err))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.endpoint, err)
	}

	return records, nil
}

// get performs the request, retrying responses the server marks as temporary
func (s *apiSource) get(ctx context.Context) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = apiRetryInitialDelay

	attempt := 0
	return backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		data, err := s.client.Get(ctx, s.endpoint)
		if err == nil {
			return data, nil
		}

		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && httpErr.Temporary() {
			slog.Warn("Players endpoint returned a retryable status",
				"endpoint", s.endpoint,
				"status", httpErr.StatusCode,
				"attempt", attempt)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(apiMaxAttempts),
	)
}

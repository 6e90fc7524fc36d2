package sync

import (
	"context"

	"github.com/hbomb79/Shiori/internal/media"
)

type (
	// Source fetches one user's list from a single external service,
	// already normalized in to ListEntry values. Implementations own
	// the wire protocol; the sync service owns pacing and timeouts.
	Source interface {
		Service() media.ListService
		FetchUserList(ctx context.Context, username string, mediaType media.MediaType) ([]media.ListEntry, error)
	}

	// AiringFeed reports the newest aired episode per airing series.
	// This beats every other episode count signal for anime.
	AiringFeed interface {
		NewestEpisodes(ctx context.Context) (map[media.Key]int, error)
	}

	// CrossReferenceResolver supplies cross-service identity pairs.
	// Returning no correlations is not an error; the resolver simply
	// may not know about the keys it was asked about.
	CrossReferenceResolver interface {
		Correlations(ctx context.Context, keys []media.Key) ([]media.Correlation, error)
	}
)

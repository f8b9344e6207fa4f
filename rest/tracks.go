package rest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/audiolink/audiolink/lavalink"
)

// LoadTracks resolves a search query or URL to playable tracks. The node
// reports failures in-band via LoadType, so a LOAD_FAILED result is returned
// to the caller rather than turned into an error. Decoded metadata from the
// result is added to the decode cache.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (lavalink.LoadResult, error) {
	if identifier == "" {
		return lavalink.LoadResult{}, fmt.Errorf("identifier is required")
	}

	query := url.Values{}
	query.Set("identifier", identifier)

	var result lavalink.LoadResult
	if err := c.get(ctx, "/loadtracks", query, &result); err != nil {
		return lavalink.LoadResult{}, fmt.Errorf("load tracks: %w", err)
	}

	for _, track := range result.Tracks {
		c.decodeCache.Put(track.Encoded, track.Info)
	}

	c.logger.Debug("tracks loaded",
		"identifier", identifier,
		"load_type", result.LoadType,
		"tracks", len(result.Tracks),
	)
	return result, nil
}

// DecodeTrack resolves an encoded track blob to its metadata, consulting
// the decode cache first.
func (c *Client) DecodeTrack(ctx context.Context, encoded string) (lavalink.TrackInfo, error) {
	if encoded == "" {
		return lavalink.TrackInfo{}, fmt.Errorf("encoded track is required")
	}

	if info, ok := c.decodeCache.Get(encoded); ok {
		return info, nil
	}

	query := url.Values{}
	query.Set("track", encoded)

	var info lavalink.TrackInfo
	if err := c.get(ctx, "/decodetrack", query, &info); err != nil {
		return lavalink.TrackInfo{}, fmt.Errorf("decode track: %w", err)
	}

	c.decodeCache.Put(encoded, info)
	return info, nil
}

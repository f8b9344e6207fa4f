package lavalink

// Track pairs an opaque node-encoded identifier with its decoded metadata.
type Track struct {
	Encoded string    `json:"track"`
	Info    TrackInfo `json:"info"`
}

// TrackInfo is the decoded metadata for a track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	SourceName string `json:"sourceName,omitempty"`
}

// PlaylistInfo describes the playlist a load result belongs to.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// LoadType discriminates the outcome of a loadtracks call.
type LoadType string

const (
	LoadTrack    LoadType = "TRACK_LOADED"
	LoadPlaylist LoadType = "PLAYLIST_LOADED"
	LoadSearch   LoadType = "SEARCH_RESULT"
	LoadNone     LoadType = "NO_MATCHES"
	LoadFailed   LoadType = "LOAD_FAILED"
)

// LoadResult is the response to a loadtracks call. Tracks is populated for
// track, playlist, and search results; PlaylistInfo only for playlists;
// Exception only for failures.
type LoadResult struct {
	LoadType     LoadType        `json:"loadType"`
	PlaylistInfo PlaylistInfo    `json:"playlistInfo"`
	Tracks       []Track         `json:"tracks"`
	Exception    *TrackException `json:"exception,omitempty"`
}

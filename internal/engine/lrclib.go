package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/shared"
)

const defaultLRCLibURL = "https://lrclib.net"

// LRCLibTrack is the /api/get response.
type LRCLibTrack struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  *string `json:"plainLyrics"`
	SyncedLyrics *string `json:"syncedLyrics"`
}

// Lyrics returns the synced lyrics when present, otherwise the plain lyrics, otherwise "".
func (t LRCLibTrack) Lyrics() string {
	if t.SyncedLyrics != nil && *t.SyncedLyrics != "" {
		return *t.SyncedLyrics
	}
	if t.PlainLyrics != nil && *t.PlainLyrics != "" {
		return *t.PlainLyrics
	}
	return ""
}

// LRCLib is a client for the public LRCLIB lyrics API, used when the engine has no lyrics.
type LRCLib struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewLRCLib creates an LRCLIB client. An empty baseURL uses lrclib.net.
func NewLRCLib(baseURL string, timeout time.Duration, logger *log.Logger) *LRCLib {
	if baseURL == "" {
		baseURL = defaultLRCLibURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &LRCLib{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     shared.WithLogger(logger, "component", "lrclib"),
	}
}

// Get looks lyrics up by artist and track. Album and duration (seconds) narrow the match when set.
// Any failure, including a non-200 response, yields "".
func (l *LRCLib) Get(ctx context.Context, artistName, trackName, albumName string, duration int) string {
	params := url.Values{}
	params.Set("artist_name", artistName)
	params.Set("track_name", trackName)
	if albumName != "" {
		params.Set("album_name", albumName)
	}
	if duration > 0 {
		params.Set("duration", strconv.Itoa(duration))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/get?"+params.Encode(), nil)
	if err != nil {
		l.logger.Debug("failed to create request", "error", err)
		return ""
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		l.logger.Debug("request failed", "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.logger.Debug("no lyrics", "status", resp.StatusCode, "track", trackName, "artist", artistName)
		return ""
	}

	var track LRCLibTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		l.logger.Debug("failed to decode response", "error", err)
		return ""
	}

	lyrics := track.Lyrics()
	l.logger.Debug("lyrics lookup", "track", trackName, "artist", artistName, "synced", track.SyncedLyrics != nil, "found", lyrics != "")
	return lyrics
}

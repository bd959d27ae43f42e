// Package engine is the HTTP client for the download engine proxy.
//
// [Client] implements bridge.Engine. Every entry point maps to one proxy endpoint and returns the response body
// unchanged. Identifier resolution, metadata and search responses are cached in memory for [Options.CacheTTL].
// When the engine has no LRC lyrics for a track, [Client.GetLyricsLRC] falls back to [LRCLib].
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/shared"
)

const defaultBaseURL = "http://127.0.0.1:8080"

// Proxy endpoints.
const (
	pathResolve     = "/api/resolve"
	pathMetadata    = "/api/metadata"
	pathSearch      = "/api/search"
	pathAvailable   = "/api/availability"
	pathDownload    = "/api/download"
	pathFallback    = "/api/download/fallback"
	pathProgress    = "/api/progress"
	pathOutputDir   = "/api/output-dir"
	pathDuplicate   = "/api/duplicate"
	pathBuildName   = "/api/filename/build"
	pathSanitize    = "/api/filename/sanitize"
	pathLyrics      = "/api/lyrics"
	pathLyricsLRC   = "/api/lyrics/lrc"
	pathEmbedLyrics = "/api/lyrics/embed"
)

// Options configures a [Client].
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	CacheTTL   time.Duration // zero disables caching
	LRCLib     *LRCLib       // optional lyrics fallback
	Logger     *log.Logger
}

// Client talks to the engine proxy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	lrclib     *LRCLib
	cache      *responseCache[string]
	logger     *log.Logger
}

// NewClient creates an engine client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	logger := shared.WithLogger(opts.Logger, "component", "engine")

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		lrclib:     opts.LRCLib,
		logger:     logger,
	}
	if opts.CacheTTL > 0 {
		c.cache = newResponseCache[string]("engine", opts.CacheTTL, cleanupInterval, logger)
	}
	return c
}

// NewClientFromConfig builds a client and its LRCLIB fallback from the [engine] config section.
func NewClientFromConfig(cfg shared.EngineConfig, logger *log.Logger) *Client {
	return NewClient(Options{
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		CacheTTL: cfg.CacheTTL,
		LRCLib:   NewLRCLib(cfg.LRCLibURL, cfg.Timeout, logger),
		Logger:   logger,
	})
}

// SetLogger redirects the client's logging, including its cache and LRCLIB fallback. It must be called before
// the client is in use.
func (c *Client) SetLogger(logger *log.Logger) {
	c.logger = shared.WithLogger(logger, "component", "engine")
	if c.cache != nil {
		c.cache.logger = c.logger
	}
	if c.lrclib != nil {
		c.lrclib.logger = shared.WithLogger(logger, "component", "lrclib")
	}
}

// cached returns the cached response for key or calls fetch and caches a successful result.
func (c *Client) cached(key string, fetch func() (string, error)) (string, error) {
	if c.cache == nil {
		return fetch()
	}
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		return "", err
	}
	c.cache.Set(key, v)
	return v, nil
}

// FlushCache drops every cached response.
func (c *Client) FlushCache() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

func (c *Client) ResolveIdentifier(ctx context.Context, rawURL string) (string, error) {
	return c.cached(cacheKey("resolve", rawURL), func() (string, error) {
		return c.send(ctx, http.MethodPost, pathResolve, map[string]string{"url": rawURL})
	})
}

func (c *Client) FetchMetadata(ctx context.Context, rawURL string) (string, error) {
	return c.cached(cacheKey("metadata", rawURL), func() (string, error) {
		return c.send(ctx, http.MethodPost, pathMetadata, map[string]string{"url": rawURL})
	})
}

func (c *Client) Search(ctx context.Context, query string, limit int) (string, error) {
	return c.cached(cacheKey("search", query, strconv.Itoa(limit)), func() (string, error) {
		params := url.Values{}
		params.Set("q", query)
		params.Set("limit", strconv.Itoa(limit))
		return c.send(ctx, http.MethodGet, pathSearch+"?"+params.Encode(), nil)
	})
}

func (c *Client) CheckAvailability(ctx context.Context, id, isrc string) (string, error) {
	return c.send(ctx, http.MethodPost, pathAvailable, map[string]string{"id": id, "isrc": isrc})
}

// DownloadItem forwards the serialized download request unchanged.
func (c *Client) DownloadItem(ctx context.Context, request string) (string, error) {
	return c.sendRaw(ctx, pathDownload, request)
}

func (c *Client) DownloadWithFallback(ctx context.Context, request string) (string, error) {
	return c.sendRaw(ctx, pathFallback, request)
}

func (c *Client) GetProgress(ctx context.Context) (string, error) {
	return c.send(ctx, http.MethodGet, pathProgress, nil)
}

func (c *Client) SetOutputDirectory(ctx context.Context, path string) error {
	_, err := c.send(ctx, http.MethodPut, pathOutputDir, map[string]string{"path": path})
	return err
}

func (c *Client) CheckDuplicate(ctx context.Context, outputDir, isrc string) (string, error) {
	return c.send(ctx, http.MethodPost, pathDuplicate, map[string]string{"output_dir": outputDir, "isrc": isrc})
}

func (c *Client) BuildFilename(ctx context.Context, template, metadata string) (string, error) {
	return c.send(ctx, http.MethodPost, pathBuildName, map[string]any{
		"template": template,
		"metadata": rawJSON(metadata),
	})
}

func (c *Client) SanitizeFilename(ctx context.Context, filename string) (string, error) {
	return c.send(ctx, http.MethodPost, pathSanitize, map[string]string{"filename": filename})
}

func lyricsPayload(id, trackName, artistName string) map[string]string {
	return map[string]string{"id": id, "track_name": trackName, "artist_name": artistName}
}

func (c *Client) FetchLyrics(ctx context.Context, id, trackName, artistName string) (string, error) {
	return c.send(ctx, http.MethodPost, pathLyrics, lyricsPayload(id, trackName, artistName))
}

// GetLyricsLRC asks the engine first. When the engine fails or returns nothing, LRCLIB is tried and its
// lyrics are returned as-is; the engine error is returned only if the fallback also comes up empty.
func (c *Client) GetLyricsLRC(ctx context.Context, id, trackName, artistName string) (string, error) {
	lrc, err := c.send(ctx, http.MethodPost, pathLyricsLRC, lyricsPayload(id, trackName, artistName))
	if err == nil && strings.TrimSpace(lrc) != "" {
		return lrc, nil
	}
	if c.lrclib == nil {
		return lrc, err
	}

	c.logger.Debug("engine has no lyrics, trying LRCLIB", "track", trackName, "artist", artistName, "error", err)
	if fallback := c.lrclib.Get(ctx, artistName, trackName, "", 0); fallback != "" {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return lrc, nil
}

func (c *Client) EmbedLyrics(ctx context.Context, filePath, lyrics string) (string, error) {
	return c.send(ctx, http.MethodPost, pathEmbedLyrics, map[string]string{"file_path": filePath, "lyrics": lyrics})
}

func (c *Client) sendRaw(ctx context.Context, path, request string) (string, error) {
	resp, err := c.Post(ctx, path, []byte(request))
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", resp.apiError()
	}
	return string(resp.Body), nil
}

// rawJSON embeds already serialized JSON in a payload.
type rawJSON string

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	if !json.Valid([]byte(r)) {
		return nil, fmt.Errorf("metadata is not valid JSON")
	}
	return []byte(r), nil
}

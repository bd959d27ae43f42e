package tasks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/dlx/internal/shared"
)

// DownloadRequest is one queued item. Raw is the serialized request handed to the engine unchanged;
// the other fields are read from it for labels, duplicate checks and history.
type DownloadRequest struct {
	ID         string `json:"id"`
	TrackName  string `json:"track_name"`
	ArtistName string `json:"artist_name"`
	AlbumName  string `json:"album_name,omitempty"`
	ISRC       string `json:"isrc,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Describe is "Artist - Track", or whichever half is known.
func (r DownloadRequest) Describe() string {
	switch {
	case r.ArtistName != "" && r.TrackName != "":
		return r.ArtistName + " - " + r.TrackName
	case r.TrackName != "":
		return r.TrackName
	case r.ID != "":
		return r.ID
	default:
		return "unknown track"
	}
}

// ParseRequest decodes one serialized request, keeping the original bytes.
func ParseRequest(raw []byte) (DownloadRequest, error) {
	var req DownloadRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	req.Raw = append(json.RawMessage(nil), raw...)
	return req, nil
}

// ReadRequests decodes a JSON array of download requests.
func ReadRequests(r io.Reader) ([]DownloadRequest, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of requests: %v", shared.ErrInvalidInput, err)
	}

	reqs := make([]DownloadRequest, 0, len(raw))
	for i, item := range raw {
		req, err := ParseRequest(item)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// LoadRequests reads requests from a file.
func LoadRequests(path string) ([]DownloadRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request file: %w", err)
	}
	defer f.Close()
	return ReadRequests(f)
}

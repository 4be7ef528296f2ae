package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"
)

// Timeout constants
const (
	DefaultParseTimeout = 60 * time.Second
)

// URL parameters and separators
const (
	PlaylistParam  = "list="
	ParamSeparator = "&"
)

// Default values
const (
	DefaultPlaylistName = "Unknown Playlist"
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// Playlist title constants
const (
	MinPrefixLength = 10
	PlaylistSuffix  = " Playlist"
)

// ErrNotPlaylist is returned by Expand for URLs without a playlist id
var ErrNotPlaylist = errors.New("not a playlist url")

// PlaylistItem is one video of an expanded playlist
type PlaylistItem struct {
	VideoID string
	Title   string
	URL     string
}

// Playlist is the result of expanding a playlist URL
type Playlist struct {
	ID    string
	Title string
	URL   string
	Items []PlaylistItem
}

// ItemsFetcher lists the videos of a playlist
type ItemsFetcher func(ctx context.Context, playlistID string) ([]PlaylistItem, error)

// PlaylistExpander turns playlist URLs into per-video URLs
type PlaylistExpander struct {
	timeout time.Duration
	fetch   ItemsFetcher
}

// NewPlaylistExpander creates an expander backed by the ytdlp library
func NewPlaylistExpander() *PlaylistExpander {
	return NewPlaylistExpanderWithFetcher(fetchWithYTDLP)
}

// NewPlaylistExpanderWithFetcher creates an expander with a custom item source
func NewPlaylistExpanderWithFetcher(fetch ItemsFetcher) *PlaylistExpander {
	return &PlaylistExpander{
		timeout: DefaultParseTimeout,
		fetch:   fetch,
	}
}

// SetTimeout sets the timeout for one expansion
func (e *PlaylistExpander) SetTimeout(timeout time.Duration) {
	e.timeout = timeout
}

// Expand lists the videos of the playlist referenced by rawURL
func (e *PlaylistExpander) Expand(ctx context.Context, rawURL string) (*Playlist, error) {
	playlistID := ExtractPlaylistID(rawURL)
	if playlistID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotPlaylist, rawURL)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	items, err := e.fetch(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	seen := make(map[string]struct{}, len(items))
	unique := make([]PlaylistItem, 0, len(items))
	for _, it := range items {
		if it.VideoID == "" {
			continue
		}
		if _, dup := seen[it.VideoID]; dup {
			continue
		}
		seen[it.VideoID] = struct{}{}
		if it.URL == "" {
			it.URL = fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID)
		}
		unique = append(unique, it)
	}

	return &Playlist{
		ID:    playlistID,
		Title: extractPlaylistTitle(unique),
		URL:   rawURL,
		Items: unique,
	}, nil
}

// IsPlaylistURL checks if the URL references a playlist
func IsPlaylistURL(rawURL string) bool {
	return ExtractPlaylistID(rawURL) != ""
}

// ExtractPlaylistID extracts the playlist ID from various URL formats
func ExtractPlaylistID(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if id := u.Query().Get("list"); id != "" {
			return id
		}
	}
	if strings.Contains(rawURL, PlaylistParam) {
		parts := strings.Split(rawURL, PlaylistParam)
		if len(parts) > 1 {
			playlistPart := parts[1]
			if strings.Contains(playlistPart, ParamSeparator) {
				playlistPart = strings.Split(playlistPart, ParamSeparator)[0]
			}
			return playlistPart
		}
	}
	return ""
}

func fetchWithYTDLP(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}

	out := make([]PlaylistItem, 0, len(items))
	for _, it := range items {
		out = append(out, PlaylistItem{VideoID: it.VideoID, Title: it.Title})
	}
	return out, nil
}

// extractPlaylistTitle generates a title for the playlist based on its videos
func extractPlaylistTitle(items []PlaylistItem) string {
	if len(items) == 0 {
		return DefaultPlaylistName
	}
	if len(items) > 1 {
		commonPrefix := findCommonPrefix(items[0].Title, items[1].Title)
		if len(commonPrefix) > MinPrefixLength {
			return strings.TrimSpace(commonPrefix) + PlaylistSuffix
		}
	}
	return items[0].Title + PlaylistSuffix
}

// findCommonPrefix finds the common prefix between two strings
func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:minLen]
}

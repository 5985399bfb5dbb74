// Package youtube fetches playlist catalogs from the YouTube Data API and
// plays videos through an mpv process driven over its JSON IPC socket.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://youtube.googleapis.com/youtube/v3"
	pageSize       = 50
)

// Client is a read-only YouTube Data API v3 client. Only an API key is
// needed, no OAuth.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// PlaylistItem is one video of a playlist.
type PlaylistItem struct {
	VideoID string
	Title   string
}

// PlaylistItems pages through the whole playlist and returns its videos in
// playlist order.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	var items []PlaylistItem
	pageToken := ""
	for {
		page, err := c.playlistPage(ctx, playlistID, pageToken)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			items = append(items, PlaylistItem{
				VideoID: item.Snippet.ResourceID.VideoID,
				Title:   item.Snippet.Title,
			})
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			return items, nil
		}
	}
}

type playlistPage struct {
	Items []struct {
		Snippet struct {
			Title      string `json:"title"`
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

func (c *Client) playlistPage(ctx context.Context, playlistID, pageToken string) (*playlistPage, error) {
	query := url.Values{}
	query.Set("part", "snippet")
	query.Set("maxResults", fmt.Sprint(pageSize))
	query.Set("playlistId", playlistID)
	query.Set("key", c.apiKey)
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/playlistItems?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building playlistItems request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting playlist %s: %w", playlistID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("playlistItems returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	var page playlistPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding playlistItems response: %w", err)
	}
	return &page, nil
}

// Package bilibili reads the watch-later list and video metadata from the
// bilibili web API.
package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"quickview/internal/services"
)

const (
	// DefaultAPIBaseURL is the public web API root.
	DefaultAPIBaseURL = "https://api.bilibili.com"
	// DefaultUserAgent mimics a desktop browser; the API rejects bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	referer           = "https://www.bilibili.com"
	watchLaterPath    = "/x/v2/history/toview"
	videoInfoPath     = "/x/web-interface/view"
	codeNotLoggedIn   = -101
	defaultAPITimeout = 10 * time.Second
)

// Config captures the runtime settings for the web API.
type Config struct {
	APIBaseURL string
	SESSDATA   string
	UserAgent  string
	Timeout    time.Duration
}

// WatchLaterItem is one entry of the watch-later list.
type WatchLaterItem struct {
	BVID            string `json:"bvid"`
	Title           string `json:"title"`
	Owner           string `json:"owner"`
	DurationSeconds int    `json:"duration_seconds"`
	Cover           string `json:"cover"`
}

// VideoInfo is the metadata returned for a single video.
type VideoInfo struct {
	BVID            string `json:"bvid"`
	Title           string `json:"title"`
	Owner           string `json:"owner"`
	DurationSeconds int    `json:"duration_seconds"`
	Description     string `json:"description"`
}

// APIError is a response whose envelope code is non-zero.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili %s: code %d: %s", e.Op, e.Code, e.Message)
}

// Client talks to the web API.
type Client struct {
	http     *resty.Client
	sessdata string
}

// NewClient constructs a client. Call Close when done.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = DefaultAPIBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	client := resty.New()
	client.SetBaseURL(base)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Referer", referer)
	client.SetHeader("Accept", "application/json")

	return &Client{http: client, sessdata: strings.TrimSpace(cfg.SESSDATA)}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type owner struct {
	Name string `json:"name"`
}

type watchLaterData struct {
	Count int `json:"count"`
	List  []struct {
		BVID     string `json:"bvid"`
		Title    string `json:"title"`
		Owner    owner  `json:"owner"`
		Duration int    `json:"duration"`
		Pic      string `json:"pic"`
	} `json:"list"`
}

type viewData struct {
	BVID     string `json:"bvid"`
	Title    string `json:"title"`
	Owner    owner  `json:"owner"`
	Duration int    `json:"duration"`
	Desc     string `json:"desc"`
}

// WatchLater returns the logged-in user's watch-later list in the order the
// API reports it. A missing or rejected SESSDATA is a configuration error.
func (c *Client) WatchLater(ctx context.Context) ([]WatchLaterItem, error) {
	if c.sessdata == "" {
		return nil, sessdataError(nil)
	}
	var data watchLaterData
	err := c.get(ctx, "watchlater", watchLaterPath, nil, true, &data)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNotLoggedIn {
			return nil, sessdataError(err)
		}
		return nil, err
	}
	items := make([]WatchLaterItem, 0, len(data.List))
	for _, entry := range data.List {
		items = append(items, WatchLaterItem{
			BVID:            entry.BVID,
			Title:           entry.Title,
			Owner:           entry.Owner.Name,
			DurationSeconds: entry.Duration,
			Cover:           entry.Pic,
		})
	}
	return items, nil
}

// VideoInfo returns metadata for one video.
func (c *Client) VideoInfo(ctx context.Context, bvid string) (VideoInfo, error) {
	bvid = strings.TrimSpace(bvid)
	if bvid == "" {
		return VideoInfo{}, errors.New("bilibili view: bvid required")
	}
	var data viewData
	if err := c.get(ctx, "view", videoInfoPath, map[string]string{"bvid": bvid}, false, &data); err != nil {
		return VideoInfo{}, err
	}
	return VideoInfo{
		BVID:            data.BVID,
		Title:           data.Title,
		Owner:           data.Owner.Name,
		DurationSeconds: data.Duration,
		Description:     data.Desc,
	}, nil
}

// Title returns the video title, for report headers.
func (c *Client) Title(ctx context.Context, bvid string) (string, error) {
	info, err := c.VideoInfo(ctx, bvid)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(info.Title), nil
}

func (c *Client) get(ctx context.Context, op, path string, query map[string]string, withCookie bool, target any) error {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if withCookie || c.sessdata != "" {
		req.SetHeader("Cookie", "SESSDATA="+c.sessdata)
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("bilibili %s: request failed: %w", op, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("bilibili %s: http %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	var env envelope
	if err := json.Unmarshal([]byte(resp.String()), &env); err != nil {
		return fmt.Errorf("bilibili %s: decode response: %w", op, err)
	}
	if env.Code != 0 {
		return &APIError{Op: op, Code: env.Code, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("bilibili %s: response has no data", op)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("bilibili %s: decode data: %w", op, err)
	}
	return nil
}

func sessdataError(cause error) error {
	return services.Wrap(services.ErrConfiguration, "bilibili", "watchlater",
		"SESSDATA missing or expired; set BILIBILI_SESSDATA or bilibili.sessdata", cause)
}

package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/ytchat/internal/models"
	"github.com/raphaelgruber/ytchat/internal/transcript"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the YouTube web origin.
	DefaultBaseURL = "https://www.youtube.com"

	// maxBodyBytes caps watch page and caption downloads.
	maxBodyBytes = 8 << 20

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ClientConfig configures the YouTube caption client.
type ClientConfig struct {
	// BaseURL overrides the YouTube origin (used by tests).
	BaseURL string

	// RequestsPerSecond limits outbound requests across all calls.
	// Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client fetches caption tracks by scraping the watch page.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Compile-time check that Client implements transcript.Source.
var _ transcript.Source = (*Client)(nil)

// NewClient creates a YouTube caption client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from the context; this is a backstop.
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

// CheckAvailability fetches the watch page and inspects its playability status.
func (c *Client) CheckAvailability(ctx context.Context, videoID string) error {
	page, status, err := c.get(ctx, c.watchURL(videoID, "", ""), "")
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return transcript.ErrVideoUnavailable
	}

	pr, err := parseWatchPage(page)
	if err != nil {
		return err
	}
	return pr.playabilityError()
}

// FetchSegments fetches the caption track selected by opts.
func (c *Client) FetchSegments(ctx context.Context, videoID string, opts transcript.FetchOptions) ([]models.Segment, error) {
	page, status, err := c.get(ctx, c.watchURL(videoID, opts.Language, opts.Country), opts.Language)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, transcript.ErrVideoUnavailable
	}

	pr, err := parseWatchPage(page)
	if err != nil {
		return nil, err
	}
	if err := pr.playabilityError(); err != nil {
		return nil, err
	}

	track, err := pr.selectTrack(opts)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetching caption track",
		"video_id", videoID,
		"language", track.LanguageCode,
		"kind", track.Kind,
	)

	body, status, err := c.get(ctx, c.absolute(track.BaseURL), opts.Language)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch caption track: unexpected status %d", status)
	}

	return parseTimedText(body)
}

// watchURL builds the watch page URL, optionally localized.
func (c *Client) watchURL(videoID, language, country string) string {
	q := url.Values{}
	q.Set("v", videoID)
	if country != "" {
		q.Set("gl", country)
		if language == "" {
			language = "en"
		}
	}
	if language != "" {
		q.Set("hl", language)
	}
	return c.baseURL + "/watch?" + q.Encode()
}

// absolute resolves caption URLs that are relative to the YouTube origin.
func (c *Client) absolute(u string) string {
	if strings.HasPrefix(u, "/") {
		return c.baseURL + u
	}
	return u
}

// get performs a rate-limited GET and returns the body and status code.
// 429 responses map to transcript.ErrTooManyRequests.
func (c *Client) get(ctx context.Context, target, language string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	acceptLanguage := "en-US,en;q=0.9"
	if language != "" {
		acceptLanguage = language + "," + acceptLanguage
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	// Skip the EU consent interstitial
	req.AddCookie(&http.Cookie{Name: "CONSENT", Value: "YES+1"})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, transcript.ErrTooManyRequests
	}
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("get %s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

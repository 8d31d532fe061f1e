// Package cdn fetches audio file bytes by range from Spotify's CDN: it
// resolves a signed CDN URL via the storage-resolve API, re-resolves the URL
// when it expires, refreshes the OAuth bearer token on 401/403, and services
// storage.Range download requests from a bounded worker pool so that many
// concurrent gaps never overwhelm the link.
package cdn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	rerrors "github.com/alxayo/streamcore/internal/errors"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/storage"
)

const (
	defaultLocationsBaseURL  = "https://api.spotify.com/v1/storage-resolve/files/audio/interactive"
	defaultURLExpiration     = 30 * time.Minute
	urlExpirationSafetyMargin = 5 * time.Second
)

// TokenSource supplies and refreshes the OAuth bearer used against the CDN
// and storage-resolve endpoints.
type TokenSource interface {
	AccessToken() (string, error)
	RefreshAccessToken(ctx context.Context) (string, error)
}

// Client resolves and range-fetches audio files from the CDN.
type Client struct {
	http   *http.Client
	tokens TokenSource

	workers int
	sem     chan struct{}

	locationsBaseURL string
}

// New builds a Client. workers bounds how many range fetches run
// concurrently across all files being serviced.
func New(tokens TokenSource, workers int) *Client {
	if workers <= 0 {
		workers = 4
	}
	return &Client{
		http:             &http.Client{Timeout: 30 * time.Second},
		tokens:           tokens,
		workers:          workers,
		sem:              make(chan struct{}, workers),
		locationsBaseURL: defaultLocationsBaseURL,
	}
}

// SignedURL is a resolved, time-limited CDN location.
type SignedURL struct {
	URL     string
	Expires time.Time
}

// Expired reports whether the URL should be considered unusable, applying a
// safety margin so a fetch in flight doesn't race the real expiry.
func (u SignedURL) Expired() bool {
	return time.Until(u.Expires) < urlExpirationSafetyMargin
}

type locationsResponse struct {
	CDNUrl []string `json:"cdnurl"`
}

// ResolveAudioFileURL asks storage-resolve for a CDN location to stream file
// from, retrying once with a refreshed token on 401/403.
func (c *Client) ResolveAudioFileURL(ctx context.Context, file ids.FileId) (SignedURL, error) {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return SignedURL{}, rerrors.NewAudioFetchingError("cdn.resolve", err)
	}

	uri := fmt.Sprintf("%s/%s", c.locationsBaseURL, file.String())
	resp, err := c.doLocationsRequest(ctx, uri, token)
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		_ = resp.Body.Close()
		refreshed, rerr := c.tokens.RefreshAccessToken(ctx)
		if rerr != nil {
			return SignedURL{}, rerrors.NewAudioFetchingError("cdn.resolve.refresh", rerr)
		}
		resp, err = c.doLocationsRequest(ctx, uri, refreshed)
	}
	if err != nil {
		return SignedURL{}, rerrors.NewAudioFetchingError("cdn.resolve", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SignedURL{}, rerrors.NewAudioFetchingError("cdn.resolve", fmt.Errorf("http status %d", resp.StatusCode))
	}

	var locations locationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&locations); err != nil {
		return SignedURL{}, rerrors.NewAudioFetchingError("cdn.resolve.decode", err)
	}
	if len(locations.CDNUrl) == 0 {
		return SignedURL{}, rerrors.NewUnexpectedResponseError("cdn.resolve", fmt.Errorf("no cdnurl entries"))
	}
	url := locations.CDNUrl[0]
	return SignedURL{URL: url, Expires: parseExpiration(url)}, nil
}

func (c *Client) doLocationsRequest(ctx context.Context, uri, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("version", "10000000")
	q.Set("product", "9")
	q.Set("platform", "39")
	q.Set("alt", "json")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(req)
}

// FetchRange downloads [offset, offset+length) of url and deposits it into w.
// It runs behind the client's worker semaphore so at most `workers` range
// fetches are in flight across the whole process.
func (c *Client) FetchRange(ctx context.Context, url string, rng storage.Range, w *storage.Writer) error {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rerrors.NewAudioFetchingError("cdn.fetch_range", err)
	}
	last := rng.Offset + rng.Length - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Offset, last))

	resp, err := c.http.Do(req)
	if err != nil {
		return rerrors.NewAudioFetchingError("cdn.fetch_range", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return rerrors.NewAudioFetchingError("cdn.fetch_range", fmt.Errorf("http status %d", resp.StatusCode))
	}

	buf := make([]byte, 32*1024)
	offset := rng.Offset
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.WriteAt(buf[:n], offset); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerrors.NewAudioFetchingError("cdn.fetch_range", rerr)
		}
	}
}

// FetchInitialRange downloads the first length bytes of url and returns the
// file's total length (from the Content-Range response header) alongside
// the bytes themselves, so the caller can size a storage.Storage before any
// further range requests are made.
func (c *Client) FetchInitialRange(ctx context.Context, url string, length int64) (int64, []byte, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, rerrors.NewAudioFetchingError("cdn.fetch_initial_range", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", length-1))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, rerrors.NewAudioFetchingError("cdn.fetch_initial_range", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return 0, nil, rerrors.NewAudioFetchingError("cdn.fetch_initial_range", fmt.Errorf("http status %d", resp.StatusCode))
	}
	total, err := parseTotalContentLength(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, rerrors.NewAudioFetchingError("cdn.fetch_initial_range", err)
	}
	return total, data, nil
}

func parseTotalContentLength(header string) (int64, error) {
	if header == "" {
		return 0, rerrors.NewUnexpectedResponseError("cdn.parse_content_range", fmt.Errorf("missing Content-Range header"))
	}
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 || idx == len(header)-1 {
		return 0, rerrors.NewUnexpectedResponseError("cdn.parse_content_range", fmt.Errorf("malformed Content-Range: %q", header))
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return 0, rerrors.NewUnexpectedResponseError("cdn.parse_content_range", err)
	}
	return total, nil
}

// ServiceRequests drains storage's request channel, fetching each requested
// range with the client's bounded worker pool until the channel closes or
// ctx is cancelled. urlFn resolves (and re-resolves, on expiry) the current
// signed CDN URL.
func (c *Client) ServiceRequests(ctx context.Context, st *storage.Storage, urlFn func(context.Context) (SignedURL, error)) {
	w := st.Writer()
	var wg sync.WaitGroup
	for {
		select {
		case rng, ok := <-st.Requests():
			if !ok {
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(rng storage.Range) {
				defer wg.Done()
				signed, err := urlFn(ctx)
				if err != nil {
					logger.Logger().Warnw("cdn: failed to resolve url for range fetch", "error", err)
					w.MarkNotRequested(rng.Offset, rng.Length)
					return
				}
				if err := c.FetchRange(ctx, signed.URL, rng, w); err != nil {
					logger.Logger().Warnw("cdn: range fetch failed", "offset", rng.Offset, "length", rng.Length, "error", err)
					w.MarkNotRequested(rng.Offset, rng.Length)
				}
			}(rng)
		case <-ctx.Done():
			wg.Wait()
			return
		}
	}
}

// parseExpiration extracts a URL's signed expiration — an absolute epoch
// millisecond timestamp — from one of the known query-parameter encodings
// used across CDN hostnames, falling back to a conservative relative
// default when none match.
func parseExpiration(url string) time.Time {
	if idx := strings.Index(url, "__token__=exp="); idx >= 0 {
		rest := url[idx+len("__token__=exp="):]
		if tilde := strings.IndexByte(rest, '~'); tilde >= 0 {
			rest = rest[:tilde]
		}
		if ms, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	if idx := strings.Index(url, "verify="); idx >= 0 {
		rest := url[idx+len("verify="):]
		if dash := strings.IndexByte(rest, '-'); dash >= 0 {
			rest = rest[:dash]
		}
		if ms, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Now().Add(defaultURLExpiration)
}

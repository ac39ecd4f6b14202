// Package kakao talks to the emoticon store: share-link resolution, item
// metadata, and pack archive downloads.
//
// The store renders share pages differently per client. The talk app
// user-agent exposes the kakaotalk:// scheme link carrying the numeric pack
// id, while a desktop browser user-agent gets redirected to the web item
// page whose final URL carries the text id. Resolution needs both.
package kakao

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"decal/internal/services"
)

const (
	defaultItemBaseURL  = "https://e.kakao.com"
	defaultShareBaseURL = "https://emoticon.kakao.com"
	defaultCDNBaseURL   = "https://item.kakaocdn.net"

	talkUserAgent    = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 KAKAOTALK 10.2.4"
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
)

var (
	emoticonSchemeRe = regexp.MustCompile(`kakaotalk://store/emoticon/(\d+)`)
	pageTitleRe      = regexp.MustCompile(`<title>(.+)</title>`)
)

// PackInfo describes one sticker pack. The JSON shape matches the pack's
// info.json on disk.
type PackInfo struct {
	PackID       int64  `json:"pack_id"`
	ShareLinkID  string `json:"share_link_id"`
	TextID       string `json:"text_id"`
	Title        string `json:"title"`
	TitleKR      string `json:"title_kr"`
	StickerCount int    `json:"count"`
	ArchiveMD5   string `json:"archive_md5"`
}

// Client provides access to the store endpoints.
type Client struct {
	itemBaseURL  string
	shareBaseURL string
	cdnBaseURL   string
	httpClient   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithItemBaseURL overrides the metadata API endpoint.
func WithItemBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.itemBaseURL = trimmed
		}
	}
}

// WithShareBaseURL overrides the share page endpoint.
func WithShareBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.shareBaseURL = trimmed
		}
	}
}

// WithCDNBaseURL overrides the archive download endpoint.
func WithCDNBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.cdnBaseURL = trimmed
		}
	}
}

// New creates a store client.
func New(opts ...Option) *Client {
	client := &Client{
		itemBaseURL:  defaultItemBaseURL,
		shareBaseURL: defaultShareBaseURL,
		cdnBaseURL:   defaultCDNBaseURL,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewHTTPClient builds the transport used against store endpoints. An empty
// proxy falls back to the process environment's proxy settings.
func NewHTTPClient(proxy string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if trimmed := strings.TrimSpace(proxy); trimmed != "" {
		proxyURL, err := url.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// ShareLinkID extracts the share link id from a share URL, dropping any
// query string.
func ShareLinkID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "fetch", "parse share link", fmt.Sprintf("invalid url %q", raw), err)
	}
	if !strings.Contains(parsed.Path, "/items/") {
		return "", services.Wrap(services.ErrValidation, "fetch", "parse share link", fmt.Sprintf("%q is not an emoticon share link", raw), nil)
	}
	id := path.Base(parsed.Path)
	if id == "" || id == "items" || id == "/" {
		return "", services.Wrap(services.ErrValidation, "fetch", "parse share link", fmt.Sprintf("%q carries no share link id", raw), nil)
	}
	return id, nil
}

// ResolvePack fetches everything needed to download a pack from its share
// link id: the numeric pack id from the share page, the text id from the
// browser redirect, and count plus Korean title from the item metadata API.
func (c *Client) ResolvePack(ctx context.Context, shareLinkID string) (*PackInfo, error) {
	shareLinkID = strings.TrimSpace(shareLinkID)
	if shareLinkID == "" {
		return nil, services.Wrap(services.ErrValidation, "fetch", "resolve pack", "share link id required", nil)
	}
	pageURL := c.shareBaseURL + "/items/" + shareLinkID

	packID, pageTitle, err := c.scrapeSharePage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	textID, err := c.resolveTextID(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	meta, err := c.fetchMetadata(ctx, textID)
	if err != nil {
		return nil, err
	}

	titleKR := strings.TrimSpace(meta.Title)
	if titleKR == "" {
		titleKR = pageTitle
	}
	return &PackInfo{
		PackID:       packID,
		ShareLinkID:  shareLinkID,
		TextID:       textID,
		Title:        textID,
		TitleKR:      titleKR,
		StickerCount: len(meta.ThumbnailURLs),
	}, nil
}

func (c *Client) scrapeSharePage(ctx context.Context, pageURL string) (int64, string, error) {
	body, err := c.get(ctx, pageURL, talkUserAgent)
	if err != nil {
		return 0, "", fmt.Errorf("fetch share page: %w", err)
	}
	match := emoticonSchemeRe.FindSubmatch(body)
	if match == nil {
		return 0, "", services.Wrap(services.ErrNotFound, "fetch", "resolve pack", "share page carries no emoticon id", nil)
	}
	packID, err := strconv.ParseInt(string(match[1]), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse pack id %q: %w", match[1], err)
	}
	var title string
	if m := pageTitleRe.FindSubmatch(body); m != nil {
		title = strings.TrimSpace(string(m[1]))
	}
	return packID, title, nil
}

// resolveTextID requests the share page as a desktop browser and reads the
// text id off the final redirected URL.
func (c *Client) resolveTextID(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("follow share redirect: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return "", fmt.Errorf("drain share redirect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("share redirect returned %d", resp.StatusCode)
	}

	textID := path.Base(resp.Request.URL.Path)
	if textID == "" || textID == "items" || textID == "/" {
		return "", services.Wrap(services.ErrNotFound, "fetch", "resolve pack", fmt.Sprintf("redirect target %q carries no text id", resp.Request.URL), nil)
	}
	return textID, nil
}

type itemMetadata struct {
	Title         string   `json:"title"`
	ThumbnailURLs []string `json:"thumbnailUrls"`
}

func (c *Client) fetchMetadata(ctx context.Context, textID string) (*itemMetadata, error) {
	body, err := c.get(ctx, c.itemBaseURL+"/api/v1/items/t/"+url.PathEscape(textID), talkUserAgent)
	if err != nil {
		return nil, fmt.Errorf("fetch item metadata: %w", err)
	}
	var payload struct {
		Result itemMetadata `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode item metadata: %w", err)
	}
	if len(payload.Result.ThumbnailURLs) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "fetch", "resolve pack", fmt.Sprintf("item %s reports no stickers", textID), nil)
	}
	return &payload.Result, nil
}

// DownloadArchive streams the pack archive to dst and returns its MD5 digest.
func (c *Client) DownloadArchive(ctx context.Context, packID int64, dst string) (string, error) {
	archiveURL := fmt.Sprintf("%s/dw/%d.file_pack.zip", c.cdnBaseURL, packID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", talkUserAgent)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", fmt.Errorf("download archive (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("archive download returned %d (latency=%v)", resp.StatusCode, latency)
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer out.Close()

	hasher := md5.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (c *Client) get(ctx context.Context, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d (latency=%v)", req.URL.Host, resp.StatusCode, latency)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

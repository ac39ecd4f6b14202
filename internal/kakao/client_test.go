package kakao_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"decal/internal/kakao"
	"decal/internal/services"
)

const sharePage = `<html><head><title>Lovely Cat</title></head><body>
<a href="kakaotalk://store/emoticon/4404138">open in app</a>
</body></html>`

func newShareServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.Header.Get("User-Agent"), "KAKAOTALK"):
			fmt.Fprint(w, sharePage)
		case r.URL.Path == "/items/abc123":
			http.Redirect(w, r, "/items/lovely.cat-v2?referer=share_link", http.StatusFound)
		default:
			fmt.Fprint(w, "web item page")
		}
	}))
}

func newItemServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/items/t/lovely.cat-v2" {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "KAKAOTALK") {
			t.Errorf("metadata request used user-agent %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, `{"result":{"title":"춘식이 스티커","thumbnailUrls":["t/1","t/2","t/3"]}}`)
	}))
}

func TestResolvePack(t *testing.T) {
	shareSrv := newShareServer(t)
	defer shareSrv.Close()
	itemSrv := newItemServer(t)
	defer itemSrv.Close()

	client := kakao.New(
		kakao.WithShareBaseURL(shareSrv.URL),
		kakao.WithItemBaseURL(itemSrv.URL),
		kakao.WithHTTPClient(shareSrv.Client()),
	)
	info, err := client.ResolvePack(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ResolvePack() error = %v", err)
	}
	if info.PackID != 4404138 {
		t.Fatalf("PackID = %d, want 4404138", info.PackID)
	}
	if info.ShareLinkID != "abc123" {
		t.Fatalf("ShareLinkID = %q, want abc123", info.ShareLinkID)
	}
	if info.TextID != "lovely.cat-v2" {
		t.Fatalf("TextID = %q, want lovely.cat-v2 (query must be dropped)", info.TextID)
	}
	if info.Title != "lovely.cat-v2" {
		t.Fatalf("Title = %q, want the text id", info.Title)
	}
	if info.TitleKR != "춘식이 스티커" {
		t.Fatalf("TitleKR = %q, want metadata title", info.TitleKR)
	}
	if info.StickerCount != 3 {
		t.Fatalf("StickerCount = %d, want 3", info.StickerCount)
	}
}

func TestResolvePackWithoutEmoticonLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>nothing here</body></html>")
	}))
	defer srv.Close()

	client := kakao.New(
		kakao.WithShareBaseURL(srv.URL),
		kakao.WithItemBaseURL(srv.URL),
		kakao.WithHTTPClient(srv.Client()),
	)
	_, err := client.ResolvePack(context.Background(), "abc123")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("ResolvePack() error = %v, want ErrNotFound", err)
	}
}

func TestShareLinkID(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"https://emoticon.kakao.com/items/abc123", "abc123"},
		{"https://emoticon.kakao.com/items/abc123?referer=share_link", "abc123"},
		{"  https://emoticon.kakao.com/items/xyz-9  ", "xyz-9"},
	}
	for _, tc := range cases {
		got, err := kakao.ShareLinkID(tc.raw)
		if err != nil {
			t.Fatalf("ShareLinkID(%q) error = %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ShareLinkID(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{
		"https://example.com/other/abc123",
		"https://emoticon.kakao.com/items/",
	} {
		if _, err := kakao.ShareLinkID(raw); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ShareLinkID(%q) error = %v, want ErrValidation", raw, err)
		}
	}
}

func TestDownloadArchive(t *testing.T) {
	payload := []byte("PK\x03\x04 pretend archive bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dw/4404138.file_pack.zip" {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "KAKAOTALK") {
			t.Errorf("archive request used user-agent %q", r.Header.Get("User-Agent"))
		}
		w.Write(payload)
	}))
	defer srv.Close()

	client := kakao.New(
		kakao.WithCDNBaseURL(srv.URL),
		kakao.WithHTTPClient(srv.Client()),
	)
	dst := filepath.Join(t.TempDir(), "archive.zip")
	sum, err := client.DownloadArchive(context.Background(), 4404138, dst)
	if err != nil {
		t.Fatalf("DownloadArchive() error = %v", err)
	}

	wantSum := md5.Sum(payload)
	if sum != hex.EncodeToString(wantSum[:]) {
		t.Fatalf("digest = %q, want md5 of payload", sum)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("archive content mismatch")
	}
}

func TestDownloadArchiveMissingPack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := kakao.New(
		kakao.WithCDNBaseURL(srv.URL),
		kakao.WithHTTPClient(srv.Client()),
	)
	_, err := client.DownloadArchive(context.Background(), 999, filepath.Join(t.TempDir(), "archive.zip"))
	if err == nil {
		t.Fatal("DownloadArchive() expected error for missing pack")
	}
	if !strings.Contains(err.Error(), "returned 404") {
		t.Fatalf("error %q missing status detail", err)
	}
}

package cdn

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/storage"
)

type staticTokens struct {
	token string
}

func (s *staticTokens) AccessToken() (string, error) { return s.token, nil }
func (s *staticTokens) RefreshAccessToken(context.Context) (string, error) {
	s.token = "refreshed"
	return s.token, nil
}

func TestResolveAudioFileURLRefreshesOn401(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("Authorization") != "Bearer refreshed" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"cdnurl":["https://cdn.example/file?verify=1700000000000-abc"]}`)
	}))
	defer srv.Close()

	c := New(&staticTokens{token: "stale"}, 2)
	c.http = srv.Client()
	c.locationsBaseURL = srv.URL

	file, _ := ids.ParseFileId("0123456789abcdef0123456789abcdef01234567")
	signed, err := c.ResolveAudioFileURL(context.Background(), file)
	if err != nil {
		t.Fatalf("ResolveAudioFileURL: %v", err)
	}
	if signed.URL == "" {
		t.Fatalf("expected non-empty url")
	}
	if hits != 2 {
		t.Fatalf("expected retry after 401, got %d requests", hits)
	}
}

func TestFetchRangeWritesIntoStorage(t *testing.T) {
	body := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 2-5/10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body[2:6])
	}))
	defer srv.Close()

	c := New(&staticTokens{token: "x"}, 1)
	c.http = srv.Client()

	st, err := storage.New(10)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	w := st.Writer()
	if err := c.FetchRange(context.Background(), srv.URL, storage.Range{Offset: 2, Length: 4}, w); err != nil {
		t.Fatalf("FetchRange: %v", err)
	}

	buf := make([]byte, 4)
	r := st.Reader()
	if _, err := r.Seek(2, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "2345" {
		t.Fatalf("unexpected data: %q", buf)
	}
}

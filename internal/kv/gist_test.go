package kv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeGistAPI mimics the subset of the GitHub Gist API the store uses.
type fakeGistAPI struct {
	mu        sync.Mutex
	files     map[string]string
	truncated bool
	status    int
	authSeen  string
}

func newFakeGistAPI() *fakeGistAPI {
	return &fakeGistAPI{files: make(map[string]string)}
}

func (f *fakeGistAPI) handler(srvURL *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.authSeen = r.Header.Get("Authorization")
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}

		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/raw/"):
			name := strings.TrimPrefix(r.URL.Path, "/raw/")
			w.Write([]byte(f.files[name])) // nolint:errcheck

		case r.Method == http.MethodGet && r.URL.Path == "/gists/abc":
			files := make(map[string]map[string]interface{})
			for name, content := range f.files {
				entry := map[string]interface{}{"content": content}
				if f.truncated {
					entry["content"] = content[:len(content)/2]
					entry["truncated"] = true
					entry["raw_url"] = *srvURL + "/raw/" + name
				}
				files[name] = entry
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"files": files}) // nolint:errcheck

		case r.Method == http.MethodPatch && r.URL.Path == "/gists/abc":
			var body struct {
				Files map[string]struct {
					Content string `json:"content"`
				} `json:"files"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			for name, file := range body.Files {
				f.files[name] = file.Content
			}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && r.URL.Path == "/gists":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "new-gist-id"}) // nolint:errcheck

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newGistServer(t *testing.T) (*fakeGistAPI, *httptest.Server) {
	t.Helper()
	api := newFakeGistAPI()
	var url string
	srv := httptest.NewServer(api.handler(&url))
	url = srv.URL
	t.Cleanup(srv.Close)
	return api, srv
}

func TestNewGist_Validation(t *testing.T) {
	if _, err := NewGist("", "token"); err == nil {
		t.Error("NewGist() expected error for empty gist ID")
	}
	if _, err := NewGist("abc", ""); err == nil {
		t.Error("NewGist() expected error for empty token")
	}
}

func TestGist(t *testing.T) {
	api, srv := newGistServer(t)

	g, err := NewGist("abc", "secret-token", WithGistBaseURL(srv.URL+"/gists"))
	if err != nil {
		t.Fatalf("NewGist() error = %v", err)
	}
	exerciseStore(t, g)

	if api.authSeen != "token secret-token" {
		t.Errorf("Authorization header = %q", api.authSeen)
	}
	if _, ok := api.files["calendar-events.json"]; !ok {
		t.Errorf("expected calendar-events.json in gist, got %v", api.files)
	}
}

func TestGist_TruncatedFile(t *testing.T) {
	api, srv := newGistServer(t)
	api.files["calendar-events.json"] = `[{"id":"a","name":"long"}]`
	api.truncated = true

	g, _ := NewGist("abc", "t", WithGistBaseURL(srv.URL+"/gists"))
	got, ok, err := g.Get(context.Background(), "calendar-events")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got != `[{"id":"a","name":"long"}]` {
		t.Errorf("Get() = %q, want full raw content", got)
	}
}

func TestGist_APIError(t *testing.T) {
	api, srv := newGistServer(t)
	api.status = http.StatusUnauthorized

	g, _ := NewGist("abc", "t", WithGistBaseURL(srv.URL+"/gists"))
	ctx := context.Background()

	if _, _, err := g.Get(ctx, "calendar-events"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Get() error = %v, want status 401", err)
	}
	if err := g.Set(ctx, "calendar-events", "[]"); err == nil {
		t.Error("Set() expected error")
	}
}

func TestCreateGist(t *testing.T) {
	_, srv := newGistServer(t)

	id, err := CreateGist(context.Background(), "t", "calendar events", "calendar-events", WithGistBaseURL(srv.URL+"/gists"))
	if err != nil {
		t.Fatalf("CreateGist() error = %v", err)
	}
	if id != "new-gist-id" {
		t.Errorf("CreateGist() = %q", id)
	}

	if _, err := CreateGist(context.Background(), "", "d", "calendar-events"); err == nil {
		t.Error("CreateGist() expected error without token")
	}
}

package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/contentflow/uploadflow/internal/models"
)

// LauncherServer is an httptest stand-in for the antidetect-browser
// launcher API: profile listing, start/stop, and per-profile bookmarks.
type LauncherServer struct {
	mu sync.Mutex

	Server    *httptest.Server
	Profiles  []models.Profile
	Bookmarks map[string][]models.Bookmark
	DebugURL  string

	StartErrCode int
	Started      []string
	Stopped      []string
}

func NewLauncherServer() *LauncherServer {
	s := &LauncherServer{
		Bookmarks: map[string][]models.Bookmark{},
		DebugURL:  "http://127.0.0.1:9222",
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *LauncherServer) URL() string {
	return s.Server.URL
}

func (s *LauncherServer) Close() {
	s.Server.Close()
}

func (s *LauncherServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/profiles":
		s.respond(w, 0, "", map[string]interface{}{"list": s.Profiles})

	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/browser/start":
		var body struct {
			ProfileID string `json:"profile_id"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if s.StartErrCode != 0 {
			s.respond(w, s.StartErrCode, "failed to start browser", nil)
			return
		}
		s.Started = append(s.Started, body.ProfileID)
		s.respond(w, 0, "", map[string]string{"debug_url": s.DebugURL})

	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/browser/stop":
		var body struct {
			ProfileID string `json:"profile_id"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		s.Stopped = append(s.Stopped, body.ProfileID)
		s.respond(w, 0, "", nil)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/profiles/") && strings.HasSuffix(r.URL.Path, "/bookmarks"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/profiles/"), "/bookmarks")
		s.respond(w, 0, "", map[string]interface{}{"list": s.Bookmarks[id]})

	default:
		http.NotFound(w, r)
	}
}

func (s *LauncherServer) respond(w http.ResponseWriter, code int, msg string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code": code,
		"msg":  msg,
		"data": data,
	})
}

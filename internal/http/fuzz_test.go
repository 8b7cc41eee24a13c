package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Clark-Hu/restroom-finder/internal/config"
)

func FuzzNearbyRequest(f *testing.F) {
	seeds := []string{
		`{"longitude":121.5,"latitude":25.0}`,
		`{"longitude":"x"}`,
		`{"latitude":1e400}`,
		`[]`,
		``,
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	srv := New(config.Config{}, Deps{Restrooms: &stubRestrooms{}})
	f.Fuzz(func(t *testing.T, body string) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nearby_toilet", strings.NewReader(body)))
		if rec.Code != http.StatusOK && rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d for body %q", rec.Code, body)
		}
	})
}

func FuzzScoreRequest(f *testing.F) {
	for _, seed := range []string{`{"score":4}`, `{"score":null}`, `{}`, `{"score":"4"}`, `nope`} {
		f.Add(seed)
	}

	ts := buildTestServer(f, nil)
	f.Fuzz(func(t *testing.T, body string) {
		rec := ts.do(t, http.MethodPost, "/rate/1", body, 1)
		if rec.Code == http.StatusInternalServerError {
			t.Fatalf("internal error for body %q", body)
		}
	})
}

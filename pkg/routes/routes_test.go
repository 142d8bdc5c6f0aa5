package routes_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/tally/pkg/routes"
)

func tag(name string, trail *[]string) routes.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trail = append(*trail, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestRegisterNestedGroups(t *testing.T) {
	var trail []string
	ok := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			trail = append(trail, "handler")
			w.Write([]byte(body + ":" + r.PathValue("expId")))
		}
	}

	group := routes.Group{
		Middleware: []routes.Middleware{tag("root", &trail)},
		Children: []routes.Group{
			{
				Prefix:     "/answers",
				Middleware: []routes.Middleware{tag("answers", &trail)},
				Routes: []routes.Route{
					{Method: "POST", Pattern: "/{expId}/states/{state}", Handler: ok("record")},
				},
			},
			{
				Prefix: "/stats",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "/{expId}/versions", Handler: ok("versions")},
				},
			},
		},
	}

	mux := http.NewServeMux()
	routes.Register(mux, group)

	tests := []struct {
		method    string
		path      string
		wantBody  string
		wantTrail string
	}{
		{"POST", "/answers/exp_1/states/Intro", "record:exp_1", "root,answers,handler"},
		{"GET", "/stats/exp_2/versions", "versions:exp_2", "root,handler"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			trail = nil
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := strings.Join(trail, ","); got != tt.wantTrail {
				t.Errorf("trail = %s, want %s", got, tt.wantTrail)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/answers/exp_1/states/Intro", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d, want 405", rec.Code)
	}
}

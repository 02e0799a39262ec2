package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	heartbeatdomain "github.com/geoinfo-winterthur/cadusage/internal/heartbeat/domain"
)

type heartbeatStub struct {
	mu     sync.Mutex
	last   heartbeatdomain.Heartbeat
	calls  int
	result heartbeatdomain.Result
	err    error
}

func (s *heartbeatStub) Record(_ context.Context, hb heartbeatdomain.Heartbeat) (heartbeatdomain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = hb
	return s.result, s.err
}

func (s *heartbeatStub) Last() heartbeatdomain.Heartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *heartbeatStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func setupServer(t *testing.T, stub *heartbeatStub) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	srv := NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{HealthAlias: "adsk_usage_statistics_py"},
		HeartbeatSvc: stub,
	})
	srv.RegisterRoutes()
	return engine
}

func doGet(engine *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	engine := setupServer(t, &heartbeatStub{})

	w := doGet(engine, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != `{"message":"Service works."}` {
		t.Fatalf("body = %s", got)
	}
}

func TestUnknownPathsAnswerAsHealth(t *testing.T) {
	engine := setupServer(t, &heartbeatStub{})

	for _, target := range []string{
		"/adsk_usage_statistics_py",
		"/adsk_usage_statistics_py/",
		"/some/random/path",
	} {
		w := doGet(engine, target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", target, w.Code)
		}
		if got := w.Body.String(); got != `{"message":"Service works."}` {
			t.Fatalf("%s: body = %s", target, got)
		}
	}
}

func TestRewrittenPingPathsReachHandler(t *testing.T) {
	stub := &heartbeatStub{}
	engine := setupServer(t, stub)

	w := doGet(engine, "/adsk_usage_statistics_py/ping?userName=hm&domainName=stadt&appCode=1")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if stub.Calls() != 1 {
		t.Fatalf("service calls = %d, want 1", stub.Calls())
	}
}

func TestPingSuccessIsEmptyNoContent(t *testing.T) {
	stub := &heartbeatStub{}
	engine := setupServer(t, stub)

	w := doGet(engine, "/ping?userName=hmeier&domainName=stadt&appCode=1&version=2024.1")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", w.Body.String())
	}

	hb := stub.Last()
	if hb.UserName != "hmeier" || hb.DomainName != "stadt" || hb.AppCode != "1" || hb.Version != "2024.1" {
		t.Fatalf("heartbeat = %+v", hb)
	}
}

func TestPingAcceptsAlternateParameterSpellings(t *testing.T) {
	stub := &heartbeatStub{}
	engine := setupServer(t, stub)

	w := doGet(engine, "/ping?username=hmeier&domainname=stadt&appcode=2&Version=map2024")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	hb := stub.Last()
	if hb.UserName != "hmeier" || hb.DomainName != "stadt" || hb.AppCode != "2" || hb.Version != "map2024" {
		t.Fatalf("heartbeat = %+v", hb)
	}
}

func TestPingValidationErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantBody string
	}{
		{"user name", heartbeatdomain.ErrMissingUserName, "No user name provided"},
		{"domain name", heartbeatdomain.ErrMissingDomainName, "No domain name provided"},
		{"app code", heartbeatdomain.ErrMissingAppCode, "No app code provided"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := setupServer(t, &heartbeatStub{err: tc.err})

			w := doGet(engine, "/ping")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := w.Body.String(); got != tc.wantBody {
				t.Fatalf("body = %q, want %q", got, tc.wantBody)
			}
		})
	}
}

func TestPingInternalFailure(t *testing.T) {
	engine := setupServer(t, &heartbeatStub{err: context.DeadlineExceeded})

	w := doGet(engine, "/ping?userName=hm&domainName=stadt&appCode=1")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := w.Body.String(); got != "Internal Server Error" {
		t.Fatalf("body = %q", got)
	}
}

package ops

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "mtcbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	s := New(Config{}, func(context.Context) any { return map[string]int{"users": 3} }, logx.Nop())
	h := s.Handler(Config{})

	if rec := get(t, h, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("/healthz = %d %q", rec.Code, rec.Body.String())
	}
	rec := get(t, h, "/stats", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"users": 3`) {
		t.Fatalf("/stats = %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/metrics", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if rec := get(t, h, "/debug/pprof/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof without flag = %d, want 404", rec.Code)
	}
	if rec := get(t, s.Handler(Config{Pprof: true}), "/debug/pprof/", ""); rec.Code != http.StatusOK {
		t.Fatalf("pprof index = %d", rec.Code)
	}
}

func TestHandlerAuth(t *testing.T) {
	t.Parallel()
	h := New(Config{}, nil, logx.Nop()).Handler(Config{Token: "s3cret"})

	if rec := get(t, h, "/healthz", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("bearer token = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz?token=s3cret", ""); rec.Code != http.StatusOK {
		t.Fatalf("query token = %d", rec.Code)
	}
	if rec := get(t, h, "/stats", "s3cret"); rec.Body.String() != "{}\n" {
		t.Fatalf("nil stats body = %q", rec.Body.String())
	}
}

func TestServiceStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, nil, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)

	var addr string
	for addr == "" && ctx.Err() == nil {
		addr = s.Addr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("server never bound")
	}

	var (
		resp *http.Response
		err  error
	)
	for ctx.Err() == nil {
		if resp, err = http.Get("http://" + addr + "/healthz"); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatalf("addr still set after disable: %q", s.Addr())
	}
}

package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dshills/flowlaws/flow"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestHTTP_Lookup(t *testing.T) {
	table := map[point]string{{1, 2}: "a&b", {0, 0}: "origin"}
	srv := httptest.NewServer(Handler[point, string](NewStatic(table)))
	defer srv.Close()

	svc := NewHTTP[point, string](srv.URL+"/", srv.Client())
	tests := []struct {
		key  point
		want flow.Option[string]
	}{
		{point{1, 2}, flow.Some("a&b")},
		{point{0, 0}, flow.Some("origin")},
		{point{3, 3}, flow.None[string]()},
	}

	for _, tt := range tests {
		got, err := svc.Lookup(context.Background(), tt.key)
		if err != nil {
			t.Fatalf("Lookup(%v): %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Lookup(%v) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestHTTP_Unavailable(t *testing.T) {
	failing := FuncService[int, int](func(context.Context, int) (flow.Option[int], error) {
		return flow.None[int](), errors.New("backend down")
	})
	srv := httptest.NewServer(Handler[int, int](failing))
	defer srv.Close()

	_, err := NewHTTP[int, int](srv.URL, nil).Lookup(context.Background(), 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Lookup error = %v, want ErrUnavailable", err)
	}
}

func TestHandler_BadKey(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler[int, int](NewStatic(map[int]int{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup?key=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHTTP_Cancelled(t *testing.T) {
	srv := httptest.NewServer(Handler[int, int](NewStatic(map[int]int{1: 1})))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHTTP[int, int](srv.URL, nil).Lookup(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Lookup error = %v, want context.Canceled", err)
	}
}

package match

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLike_Matched(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/likes" {
			t.Fatalf("path = %s, want /api/likes", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req likeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.UserID != 1 || req.CardID != 42 {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(likeResponse{Matched: true}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	matched, err := client.Like(ctx, 1, 42)
	if err != nil {
		t.Fatalf("Like error: %v", err)
	}
	if !matched {
		t.Fatalf("matched = false, want true")
	}
}

func TestLike_NotMatched(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(likeResponse{Matched: false})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	matched, err := client.Like(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("Like error: %v", err)
	}
	if matched {
		t.Fatalf("matched = true, want false")
	}
}

func TestLike_RetriesThenFails(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	client.httpClient.RetryMax = 1
	client.httpClient.RetryWaitMin = time.Millisecond
	client.httpClient.RetryWaitMax = time.Millisecond

	_, err := client.Like(context.Background(), 1, 42)
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", calls)
	}
}

func TestLike_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := NewClient(ts.URL)
	client.httpClient.RetryMax = 0

	_, err := client.Like(context.Background(), 1, 42)
	if err == nil {
		t.Fatalf("expected error for unreachable service")
	}
}

func TestLike_NotConfigured(t *testing.T) {
	var client *Client

	_, err := client.Like(context.Background(), 1, 42)
	if err == nil {
		t.Fatalf("expected error for nil client")
	}
}

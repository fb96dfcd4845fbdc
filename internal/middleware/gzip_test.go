package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// echoHandler возвращает тело запроса обратно, как JSON.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func gzipCompress(t *testing.T, payload string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(payload)); err != nil {
		t.Fatalf("compress payload: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return &buf
}

func gzipDecompress(t *testing.T, body io.Reader) string {
	t.Helper()

	gr, err := gzip.NewReader(body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer gr.Close()

	decoded, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("decompress body: %v", err)
	}
	return string(decoded)
}

func TestGzipMiddleware_CompressesResponse(t *testing.T) {
	payload := `{"allowed":false,"retry_after":3600}`

	req := httptest.NewRequest(http.MethodPost, "/api/packs/casual/availability", strings.NewReader(payload))
	req.Header.Set("Accept-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ce := res.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", ce)
	}
	if got := gzipDecompress(t, res.Body); got != payload {
		t.Fatalf("body = %q, want %q", got, payload)
	}
}

func TestGzipMiddleware_PlainClientGetsPlainResponse(t *testing.T) {
	payload := `{"outcome":"PASSED"}`

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/abc/cards/7/decision", strings.NewReader(payload))

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if ce := res.Header.Get("Content-Encoding"); ce != "" {
		t.Fatalf("Content-Encoding = %q, want empty", ce)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != payload {
		t.Fatalf("body = %q, want %q", string(body), payload)
	}
}

func TestGzipMiddleware_DecompressesRequestBody(t *testing.T) {
	payload := `{"outcome":"LIKED"}`

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/abc/cards/7/decision", gzipCompress(t, payload))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != payload {
		t.Fatalf("handler saw %q, want decompressed %q", string(body), payload)
	}
}

func TestGzipMiddleware_RejectsCorruptRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/abc/cards/7/decision", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

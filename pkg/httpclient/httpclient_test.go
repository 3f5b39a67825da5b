package httpclient

import (
	"context"
	"encoding/json"
	"marketplace/pkg/config"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPostJSONThroughClient(t *testing.T) {
	var got struct {
		To string `json:"to"`
	}
	var ua, ct string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua, ct = r.Header.Get("User-Agent"), r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(config.HTTPClient{ConnectTimeout: time.Second, ClientTimeout: 5 * time.Second, KeepAlives: true})
	defer c.CloseIdle()

	resp, err := PostJSON(context.Background(), c, srv.URL, map[string]string{"to": "ann@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got.To != "ann@example.com" || ct != "application/json" {
		t.Fatalf("payload %+v, content type %q", got, ct)
	}
	if ua != defaultUserAgent {
		t.Fatalf("user agent = %q", ua)
	}
}

func TestPostJSONRejectsUnencodable(t *testing.T) {
	if _, err := PostJSON(context.Background(), stdClient{}, "http://localhost", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

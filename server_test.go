package spoold_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/spoold"
	"pkt.systems/spoold/api"
	"pkt.systems/spoold/internal/auth"
)

const testSecret = "server-test-secret"

func mintToken(t *testing.T) string {
	t.Helper()
	token, err := auth.Sign("server-test", testSecret, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("auth.Sign: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return resp, data
}

func TestServerSubmitEndToEnd(t *testing.T) {
	t.Parallel()

	spoolDir := t.TempDir()
	ts := spoold.StartTestServer(t, spoold.Config{
		SpoolDir: spoolDir,
		Secret:   testSecret,
	})

	payload := `{"checkouts":[{"id":"c1"}],"builds":[]}`
	resp, body := doRequest(t, http.MethodPost, ts.URL()+"/submit", mintToken(t), payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var submit api.SubmitResponse
	if err := json.Unmarshal(body, &submit); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	published := filepath.Join(spoolDir, "submission-"+submit.ID+".json")
	got, err := os.ReadFile(published)
	if err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("payload mismatch: %q vs %q", got, payload)
	}
}

func TestServerRejectsUnauthenticated(t *testing.T) {
	t.Parallel()

	spoolDir := t.TempDir()
	ts := spoold.StartTestServer(t, spoold.Config{
		SpoolDir: spoolDir,
		Secret:   testSecret,
	})

	resp, body := doRequest(t, http.MethodPost, ts.URL()+"/submit", "", `{"a":1}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", resp.StatusCode, body)
	}
	entries, err := os.ReadDir(spoolDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected request wrote to spool: %v", entries)
	}
}

func TestServerStatusAndMetrics(t *testing.T) {
	t.Parallel()

	ts := spoold.StartTestServer(t, spoold.Config{
		SpoolDir: t.TempDir(),
		Secret:   testSecret,
	})
	token := mintToken(t)

	if resp, _ := doRequest(t, http.MethodPost, ts.URL()+"/submit", token, `{"n":1}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit failed: %d", resp.StatusCode)
	}

	resp, body := doRequest(t, http.MethodGet, ts.URL()+"/status?id=AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", token, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet, ts.URL()+"/metrics", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 scrape, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "spoold_submissions_total 1") {
		t.Fatalf("scrape missing submissions counter:\n%s", body)
	}
}

func TestNewServerRejectsMissingSpoolDir(t *testing.T) {
	t.Parallel()

	_, err := spoold.NewServer(spoold.Config{
		SpoolDir: filepath.Join(t.TempDir(), "absent"),
		Listen:   "127.0.0.1:0",
	})
	if err == nil {
		t.Fatal("expected error for missing spool directory")
	}
}

func TestServerUnixSocket(t *testing.T) {
	t.Parallel()

	socket := filepath.Join(t.TempDir(), "spoold.sock")
	ts := spoold.StartTestServer(t, spoold.Config{
		SpoolDir:    t.TempDir(),
		Secret:      testSecret,
		ListenProto: "unix",
		Listen:      socket,
	})

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (conn net.Conn, err error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		},
	}
	req, err := http.NewRequest(http.MethodGet, "http://spoold/healthz", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := ts.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Fatalf("socket not cleaned up: %v", err)
	}
}

package regionmirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server) *BucketClient {
	t.Helper()
	c, err := NewBucketClient(srv.URL, "test-bucket", "AKIAEXAMPLE", "secretkey")
	if err != nil {
		t.Fatalf("NewBucketClient: %v", err)
	}
	return c
}

func TestNewBucketClientRejectsMissingFields(t *testing.T) {
	if _, err := NewBucketClient("", "bucket", "key", "secret"); err == nil {
		t.Fatalf("expected an error for an empty endpoint")
	}
	if _, err := NewBucketClient("https://example.com", "", "key", "secret"); err == nil {
		t.Fatalf("expected an error for an empty bucket")
	}
}

func TestPutFileUploadsWithSignedRequest(t *testing.T) {
	var gotPath, gotAuth, gotContentSHA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentSHA = r.Header.Get("x-amz-content-sha256")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	localPath := filepath.Join(dir, "r_0_0.region")
	if err := os.WriteFile(localPath, []byte("region bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := newTestClient(t, srv)
	if err := c.PutFile(context.Background(), "overworld/r_0_0.region", localPath); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if gotPath != "/test-bucket/overworld/r_0_0.region" {
		t.Fatalf("unexpected request path: %s", gotPath)
	}
	if gotAuth == "" || gotContentSHA == "" {
		t.Fatalf("expected signed headers to be set, got auth=%q sha=%q", gotAuth, gotContentSHA)
	}
}

func TestPutFileReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("access denied"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	localPath := filepath.Join(dir, "r_0_0.region")
	if err := os.WriteFile(localPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := newTestClient(t, srv)
	if err := c.PutFile(context.Background(), "r_0_0.region", localPath); err == nil {
		t.Fatalf("expected an error for a 403 response")
	}
}

func TestMirrorUploadsEnqueuedFileAndUpdatesStats(t *testing.T) {
	var uploaded int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploaded++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	worldDir := t.TempDir()
	regionPath := filepath.Join(worldDir, "overworld", "r_2_-1.region")
	if err := os.MkdirAll(filepath.Dir(regionPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(regionPath, []byte("region bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := newTestClient(t, srv)
	m := New(c, worldDir, "worlds/demo", 2, 16, 10*time.Millisecond, nil)
	defer m.Close()

	m.Enqueue(regionPath)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Stats().UploadSuccessTotal == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	stats := m.Stats()
	if stats.UploadSuccessTotal != 1 {
		t.Fatalf("expected exactly one successful upload, got stats=%+v uploaded=%d", stats, uploaded)
	}
	if stats.EnqueuedTotal != 1 {
		t.Fatalf("expected EnqueuedTotal to be 1, got %d", stats.EnqueuedTotal)
	}
}

func TestMirrorObjectKeyRejectsPathOutsideWorldDir(t *testing.T) {
	c := &BucketClient{}
	m := New(c, t.TempDir(), "", 1, 4, time.Millisecond, nil)
	defer m.Close()

	if _, err := m.objectKey(filepath.Join(os.TempDir(), "not-under-world-dir.region")); err == nil {
		t.Fatalf("expected an error for a path outside the world dir")
	}
}

func TestMirrorEnqueueOnNilMirrorIsNoop(t *testing.T) {
	var m *Mirror
	m.Enqueue("anything") // must not panic
}

package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLocalPutAndDelete(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "/uploads/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	obj, err := l.Put(context.Background(), "../Slides Week 1.PDF", "application/pdf", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Size != 5 || !strings.HasPrefix(obj.URL, "/uploads/") || !strings.HasSuffix(obj.Key, "-Slides-Week-1.pdf") {
		t.Fatalf("unexpected object: %+v", obj)
	}
	raw, err := os.ReadFile(filepath.Join(dir, obj.Key))
	if err != nil || string(raw) != "hello" {
		t.Fatalf("file content: %q err=%v", raw, err)
	}

	if err := l.Delete(context.Background(), obj.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := l.Delete(context.Background(), obj.Key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if err := l.Delete(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("want error for path traversal key")
	}
}

func TestCloudinaryUploadSignsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/demo/auto/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("api_key") != "key" || r.FormValue("folder") != "materials" || r.FormValue("signature") == "" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file: %v", err)
		} else {
			b, _ := io.ReadAll(f)
			if string(b) != "data" {
				t.Errorf("file body: %q", b)
			}
		}
		_, _ = w.Write([]byte(`{"public_id":"materials/abc","secure_url":"https://cdn/x.pdf","resource_type":"raw","bytes":4}`))
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "secret", "materials")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	obj, err := c.Put(context.Background(), "notes.pdf", "application/pdf", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Key != "raw/materials/abc" || obj.URL != "https://cdn/x.pdf" || obj.Size != 4 {
		t.Fatalf("unexpected object: %+v", obj)
	}
}

func TestCloudinaryErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/demo/raw/destroy" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	if err := c.Delete(context.Background(), "raw/materials/abc"); err == nil {
		t.Fatal("want error on 401")
	}
	if err := c.Delete(context.Background(), "nokey"); err == nil {
		t.Fatal("want error on malformed key")
	}
}

func TestSignIsOrderIndependent(t *testing.T) {
	c := &Cloudinary{APISecret: "s"}
	a := c.sign(map[string]string{"timestamp": "1", "public_id": "p", "api_key": "k"})
	b := c.sign(map[string]string{"public_id": "p", "timestamp": "1"})
	if a != b {
		t.Fatalf("want equal signatures got=%s %s", a, b)
	}
}

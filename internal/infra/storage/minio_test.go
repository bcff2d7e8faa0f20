package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type recordedPut struct {
	path        string
	contentType string
	body        string
}

func fakeS3(t *testing.T) (*Store, *[]recordedPut) {
	t.Helper()
	var mu sync.Mutex
	puts := []recordedPut{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusOK)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(b)})
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	cli, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Secure: false,
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("minio.New: %v", err)
	}
	return &Store{client: cli, bucketName: "archive", region: "us-east-1"}, &puts
}

func TestPutUploadsBody(t *testing.T) {
	s, puts := fakeS3(t)
	got, err := s.Put(context.Background(), "acme/eng-1/analytical-review-approved-v3.json", []byte(`{"id":"r1"}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(*puts) != 1 {
		t.Fatalf("puts = %d", len(*puts))
	}
	p := (*puts)[0]
	// plain-http uploads may be sent aws-chunked, so only look for the payload
	if p.path != "/archive/acme/eng-1/analytical-review-approved-v3.json" || p.contentType != "application/json" || !strings.Contains(p.body, `{"id":"r1"}`) {
		t.Fatalf("put = %+v", p)
	}
	want := "http://" + s.client.EndpointURL().Host + "/archive/acme/eng-1/analytical-review-approved-v3.json"
	if got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}

func TestPutCleansKey(t *testing.T) {
	s, puts := fakeS3(t)
	if _, err := s.Put(context.Background(), "../../acme/x.json", []byte("{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if (*puts)[0].path != "/archive/acme/x.json" {
		t.Fatalf("path = %s", (*puts)[0].path)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.json": "application/json",
		"a.CSV":  "text/csv",
		"a.bin":  "application/octet-stream",
	}
	for key, want := range cases {
		if got := contentTypeFor(key); got != want {
			t.Fatalf("contentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}

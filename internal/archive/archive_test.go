package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rpattn/incidentetl/internal/config"
)

func TestKeys(t *testing.T) {
	if got := SourceKey("b1", ".CSV"); got != "b1/source.csv" {
		t.Fatalf("unexpected source key %q", got)
	}
	if got := CleanKey("b1"); got != "b1/clean.csv" {
		t.Fatalf("unexpected clean key %q", got)
	}
}

func TestSanitizeKey_RejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestFSStore_PutGet(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "batch/source.csv", []byte("Number\nINC001\n"), "text/csv"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := store.Get(ctx, "batch/source.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "Number\nINC001\n" {
		t.Fatalf("unexpected content %q", data)
	}

	if _, err := store.Get(ctx, "batch/missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PutGetCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	payload := []byte("abc")
	if err := store.Put(ctx, "k/v", payload, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	payload[0] = 'z'

	got, err := store.Get(ctx, "k/v")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("stored bytes were aliased: %q", got)
	}
	if keys := store.Keys(); len(keys) != 1 || keys[0] != "k/v" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.ArchiveConfig{Driver: "memory"})
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("expected memory store, got %v, %v", store, err)
	}

	store, err = Open(ctx, config.ArchiveConfig{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs store, got %v, %v", store, err)
	}

	store, err = Open(ctx, config.ArchiveConfig{Driver: "none"})
	if err != nil || store != nil {
		t.Fatalf("expected disabled archive, got %v, %v", store, err)
	}

	if _, err := Open(ctx, config.ArchiveConfig{Driver: "s3"}); err == nil {
		t.Fatalf("expected error for s3 without bucket")
	}
}

type recordingTransport struct {
	mu       sync.Mutex
	requests []string
	objects  map[string][]byte
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.requests = append(rt.requests, req.Method+" "+req.URL.Path)

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		rt.objects[req.URL.Path] = body
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"Etag": {`"etag"`}}}, nil
	case http.MethodGet:
		if body, ok := rt.objects[req.URL.Path]; ok {
			return &http.Response{StatusCode: http.StatusOK, ContentLength: int64(len(body)), Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{}}, nil
		}
		notFound := `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(notFound)), Header: http.Header{"Content-Type": {"application/xml"}}}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func TestS3Store_PutUsesPrefixedKey(t *testing.T) {
	rt := &recordingTransport{objects: map[string][]byte{}}
	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:    "incidents",
		Region:    "us-east-1",
		PathStyle: true,
		KeyPrefix: "uploads",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.Credentials = credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if store.Driver() != DriverS3 {
		t.Fatalf("unexpected driver %q", store.Driver())
	}

	if err := store.Put(context.Background(), "b1/clean.csv", []byte("number\n"), "text/csv"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(rt.requests) != 1 || rt.requests[0] != "PUT /incidents/uploads/b1/clean.csv" {
		t.Fatalf("unexpected requests %v", rt.requests)
	}

	if _, err := store.Get(context.Background(), "b1/missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

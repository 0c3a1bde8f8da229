package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestInMemoryBlobStore_PutGet(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := `{"callId":"c1","summary":"booked"}`

	meta, err := store.Put(context.Background(), "call-summaries/c1.json", "application/json", strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), meta.Size)
	}
	wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if meta.Hash != wantHash {
		t.Errorf("expected hash %s, got %s", wantHash, meta.Hash)
	}

	rc, got, err := store.Get(context.Background(), "call-summaries/c1.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != content {
		t.Errorf("expected %q, got %q", content, data)
	}
	if got.ContentType != "application/json" {
		t.Errorf("expected application/json, got %s", got.ContentType)
	}
}

func TestInMemoryBlobStore_PutOverwrites(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()
	store.Put(ctx, "k", "text/plain", strings.NewReader("one"))
	store.Put(ctx, "k", "text/plain", strings.NewReader("two"))

	rc, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "two" {
		t.Errorf("expected overwritten content, got %q", data)
	}
}

func TestInMemoryBlobStore_NotFound(t *testing.T) {
	store := NewInMemoryBlobStore()
	if _, _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_Delete(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()
	store.Put(ctx, "k", "text/plain", strings.NewReader("x"))
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected deleted blob to be gone, got %v", err)
	}
}

func TestInMemoryBlobStore_TooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	big := bytes.Repeat([]byte("a"), MaxBlobSize+1)
	if _, err := store.Put(context.Background(), "big", "text/plain", bytes.NewReader(big)); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"call-summaries/c1.json", true},
		{"", false},
		{"/abs/path", false},
		{"call-summaries/../secret", false},
	}
	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateKey(%q) = %v, want valid=%v", tt.key, err, tt.valid)
		}
	}
}

type fakeS3 struct {
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	f.meta[aws.ToString(in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      f.meta[aws.ToString(in.Key)],
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3BlobStore_PutGet(t *testing.T) {
	store := &S3BlobStore{client: newFakeS3(), bucket: "archive"}
	ctx := context.Background()

	meta, err := store.Put(ctx, "call-summaries/c1.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc, got, err := store.Get(ctx, "call-summaries/c1.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	if got.Hash != meta.Hash {
		t.Errorf("expected hash %s to round-trip, got %s", meta.Hash, got.Hash)
	}
}

func TestS3BlobStore_NotFound(t *testing.T) {
	store := &S3BlobStore{client: newFakeS3(), bucket: "archive"}
	if _, _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestNewS3BlobStore_RequiresBucket(t *testing.T) {
	if _, err := NewS3BlobStore(context.Background(), "", "ap-south-1", ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

package s3

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

type objectAPIFake struct {
	objects map[string][]byte
}

func (f *objectAPIFake) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	raw, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(raw))}, nil
}

func (f *objectAPIFake) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = raw
	return &s3.PutObjectOutput{}, nil
}

func TestStorageRoundTripUnderPrefix(t *testing.T) {
	fake := &objectAPIFake{objects: map[string][]byte{}}
	s := &Storage{client: fake, bucket: "docs", prefix: "artifacts"}

	if err := s.Save(context.Background(), "user/chunks.jsonl", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok := fake.objects["docs/artifacts/user/chunks.jsonl"]; !ok {
		t.Fatalf("expected object under prefix, got %v", fake.objects)
	}

	rc, err := s.Open(context.Background(), "user/chunks.jsonl")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "x" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestOpenMissingObjectReturnsArtifactNotFound(t *testing.T) {
	s := &Storage{client: &objectAPIFake{objects: map[string][]byte{}}, bucket: "docs"}
	_, err := s.Open(context.Background(), "user/index.flat")
	if !domain.IsKind(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), "us-east-1", "", "")
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

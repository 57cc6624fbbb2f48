package models

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string]string
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3SourceFetch(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"models/model_BTC.json": linearDoc}}
	src := newS3Source(api, "bucket", "/models")

	if _, err := src.Fetch(context.Background(), "model_BTC"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	b, err := src.Fetch(context.Background(), "model_BTC.json")
	if err != nil || string(b) != linearDoc {
		t.Fatalf("fetch: %q %v", b, err)
	}
	if got := src.Describe("model_BTC"); got != "s3://bucket/models/model_BTC" {
		t.Fatalf("describe: %q", got)
	}
}

func TestArtifactBuilderOverS3(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"m/model_BTC.json": linearDoc}}
	b := NewArtifactBuilder(newS3Source(api, "bucket", "m"), map[string]string{"BTC": "model_BTC"}, []string{"Close"}, nil)

	got, err := b.Build(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("build: %v %v", got, err)
	}
	if strings.Join(api.keys, ",") != "m/model_BTC,m/model_BTC.json" {
		t.Fatalf("expected plain then .json lookup, got %v", api.keys)
	}
}

func TestFileSourceNotFound(t *testing.T) {
	src := NewFileSource(t.TempDir())
	if _, err := src.Fetch(context.Background(), "nope"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewS3SourceRequiresBucket(t *testing.T) {
	if _, err := NewS3Source(context.Background(), S3Options{Region: "us-east-1"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

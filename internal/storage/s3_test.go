package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kiesman99/tiler/pkg/tile"
)

type fakeClient struct {
	mu          sync.Mutex
	hasBucket   bool
	created     []string
	objects     map[string]string
	contentType map[string]string
	failKey     string
}

func newFakeClient(hasBucket bool) *fakeClient {
	return &fakeClient{
		hasBucket:   hasBucket,
		objects:     map[string]string{},
		contentType: map[string]string{},
	}
}

func (c *fakeClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !c.hasBucket {
		return nil, errors.New("not found")
	}
	return &s3.HeadBucketOutput{}, nil
}

func (c *fakeClient) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, aws.ToString(in.Bucket))
	c.hasBucket = true
	return &s3.CreateBucketOutput{}, nil
}

func (c *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == c.failKey {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = string(data)
	c.contentType[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("data:"+n), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestUpload(t *testing.T) {
	client := newFakeClient(false)
	u := &Uploader{Client: client, Bucket: "tiles", Prefix: "scenes/a"}
	files := writeFiles(t, "a_0_0.png", "a_0_512.png")

	keys, err := u.Upload(context.Background(), files)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if len(client.created) != 1 || client.created[0] != "tiles" {
		t.Errorf("Expected bucket to be created once, got %v", client.created)
	}
	want := []string{"scenes/a/a_0_0.png", "scenes/a/a_0_512.png"}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("got keys %v, want %v", keys, want)
	}
	if client.objects["scenes/a/a_0_512.png"] != "data:a_0_512.png" {
		t.Errorf("unexpected object body %q", client.objects["scenes/a/a_0_512.png"])
	}
	if client.contentType["scenes/a/a_0_0.png"] != "image/png" {
		t.Errorf("unexpected content type %q", client.contentType["scenes/a/a_0_0.png"])
	}
}

func TestUpload_ExistingBucket(t *testing.T) {
	client := newFakeClient(true)
	u := &Uploader{Client: client, Bucket: "tiles"}

	keys, err := u.Upload(context.Background(), writeFiles(t, "t_0_0.tif"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if len(client.created) != 0 {
		t.Errorf("bucket should not be recreated")
	}
	if len(keys) != 1 || keys[0] != "t_0_0.tif" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestUpload_PartialFailure(t *testing.T) {
	client := newFakeClient(true)
	client.failKey = "b_0_1.png"
	u := &Uploader{Client: client, Bucket: "tiles"}

	files := writeFiles(t, "a_0_0.png", "b_0_1.png", "c_0_2.png")
	files = append(files, filepath.Join(filepath.Dir(files[0]), "missing_0_3.png"))

	keys, err := u.Upload(context.Background(), files)
	if !errors.Is(err, tile.ErrIOWrite) {
		t.Fatalf("Expected ErrIOWrite, got %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected the two good files to be uploaded, got %v", keys)
	}
	if _, ok := client.objects["c_0_2.png"]; !ok {
		t.Error("upload should continue after a failed file")
	}
}

func TestUpload_Cancelled(t *testing.T) {
	client := newFakeClient(true)
	u := &Uploader{Client: client, Bucket: "tiles"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	keys, err := u.Upload(ctx, writeFiles(t, "a_0_0.png"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected nothing uploaded, got %v", keys)
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("Expected error without bucket")
	}
}

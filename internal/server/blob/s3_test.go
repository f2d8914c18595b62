package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeObjectClient struct {
	putKey    string
	putBody   []byte
	putErr    error
	deleteKey string
	deleteErr error
}

func (f *fakeObjectClient) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.putKey = *in.Key
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.putBody = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleteKey = *in.Key
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresignClient struct {
	url string
	err error
}

func (f *fakePresignClient) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url + "/" + *in.Key}, nil
}

func newTestService(client *fakeObjectClient, presign *fakePresignClient) *Service {
	return &Service{
		cfg:     Config{Bucket: "clips", PresignTTL: time.Minute},
		client:  client,
		presign: presign,
	}
}

func TestPut(t *testing.T) {
	client := &fakeObjectClient{}
	svc := newTestService(client, &fakePresignClient{})

	if err := svc.Put(context.Background(), "k1", []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.putKey != "k1" || string(client.putBody) != "payload" {
		t.Errorf("unexpected upload: key=%q body=%q", client.putKey, client.putBody)
	}
}

func TestPut_Error(t *testing.T) {
	client := &fakeObjectClient{putErr: errors.New("boom")}
	svc := newTestService(client, &fakePresignClient{})

	if err := svc.Put(context.Background(), "k1", []byte("x")); err == nil {
		t.Fatalf("want error, got nil")
	}
}

func TestPresignGet(t *testing.T) {
	svc := newTestService(&fakeObjectClient{}, &fakePresignClient{url: "https://minio.local/clips"})

	url, err := svc.PresignGet(context.Background(), "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://minio.local/clips/k1" {
		t.Errorf("unexpected url: %q", url)
	}
}

func TestDelete(t *testing.T) {
	client := &fakeObjectClient{}
	svc := newTestService(client, &fakePresignClient{})

	if err := svc.Delete(context.Background(), "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.deleteKey != "k1" {
		t.Errorf("unexpected delete key: %q", client.deleteKey)
	}
}

func TestRandomKey(t *testing.T) {
	k1 := RandomKey("acc1")
	k2 := RandomKey("acc1")
	if k1 == k2 {
		t.Errorf("keys should be unique: %q", k1)
	}
	if !strings.HasPrefix(k1, "accounts/acc1/") {
		t.Errorf("key not scoped to account: %q", k1)
	}
}

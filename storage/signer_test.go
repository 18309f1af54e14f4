package storage

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	bucket, key string
	expires     time.Duration
	err         error
}

func (f *fakePresigner) PresignedGetObject(_ context.Context, bucket, key string, expires time.Duration, _ url.Values) (*url.URL, error) {
	f.bucket, f.key, f.expires = bucket, key, expires
	if f.err != nil {
		return nil, f.err
	}
	return url.Parse("https://minio.local/" + bucket + "/" + key + "?X-Amz-Signature=sig")
}

func TestSignerSign(t *testing.T) {
	p := &fakePresigner{}
	s := NewSigner(p, "vibelock", 15*time.Minute, "https://ipfs.io/ipfs")

	tests := []struct {
		name    string
		locator string
		want    string
		wantErr error
	}{
		{"http passthrough", "http://cdn.example/a.mp3", "http://cdn.example/a.mp3", nil},
		{"https passthrough", "https://cdn.example/a.mp3", "https://cdn.example/a.mp3", nil},
		{"ipfs", "ipfs://bafyabc/track.mp3", "https://ipfs.io/ipfs/bafyabc/track.mp3", nil},
		{"ipfs with ipfs prefix", "ipfs://ipfs/bafyabc", "https://ipfs.io/ipfs/bafyabc", nil},
		{"s3", "s3://premium/a1.flac", "https://minio.local/premium/a1.flac?X-Amz-Signature=sig", nil},
		{"minio default bucket", "minio://premium/a1.flac", "https://minio.local/vibelock/premium/a1.flac?X-Amz-Signature=sig", nil},
		{"empty", "  ", "", ErrEmptyLocator},
		{"no scheme", "track.mp3", "", ErrUnsupportedLocator},
		{"unknown scheme", "ftp://host/a.mp3", "", ErrUnsupportedLocator},
		{"s3 without key", "s3://premium", "", ErrUnsupportedLocator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Sign(context.Background(), tt.locator)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 15*time.Minute, p.expires)
}

func TestSignerWithoutPresigner(t *testing.T) {
	s := NewSigner(nil, "vibelock", 0, "")

	_, err := s.Sign(context.Background(), "s3://premium/a1.flac")
	assert.ErrorIs(t, err, ErrSignerDisabled)

	_, err = s.Sign(context.Background(), "ipfs://bafyabc")
	assert.ErrorIs(t, err, ErrUnsupportedLocator)

	got, err := s.Sign(context.Background(), "https://cdn.example/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.mp3", got)
}

func TestSignerPresignError(t *testing.T) {
	boom := errors.New("access denied")
	s := NewSigner(&fakePresigner{err: boom}, "vibelock", time.Hour, "")

	_, err := s.Sign(context.Background(), "minio://a1.flac")
	assert.ErrorIs(t, err, boom)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "AKIA...", mask("AKIAXXXXXXXX"))
	assert.Equal(t, "***", mask("abc"))
}

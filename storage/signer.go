package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrEmptyLocator       = errors.New("empty stream locator")
	ErrUnsupportedLocator = errors.New("unsupported stream locator")
	ErrSignerDisabled     = errors.New("object storage not configured")
)

// Presigner is the part of *minio.Client the signer needs.
type Presigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Signer 把曲目里的存储定位符转成浏览器可直接拉流的地址
//
//	s3://bucket/key     -> MinIO presigned GET
//	minio://key         -> 默认桶的 presigned GET
//	ipfs://CID[/path]   -> 网关地址
//	http(s)://...       -> 原样返回
type Signer struct {
	presigner     Presigner
	defaultBucket string
	expiry        time.Duration
	gateway       string
}

// NewSigner creates a signer. presigner may be nil, in which case object
// storage locators fail with ErrSignerDisabled.
func NewSigner(presigner Presigner, defaultBucket string, expiry time.Duration, ipfsGateway string) *Signer {
	if expiry <= 0 {
		expiry = time.Hour
	}
	if ipfsGateway != "" && !strings.HasSuffix(ipfsGateway, "/") {
		ipfsGateway += "/"
	}
	return &Signer{
		presigner:     presigner,
		defaultBucket: defaultBucket,
		expiry:        expiry,
		gateway:       ipfsGateway,
	}
}

// Sign implements player.URLSigner.
func (s *Signer) Sign(ctx context.Context, locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", ErrEmptyLocator
	}

	scheme, rest, ok := strings.Cut(locator, "://")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocator, locator)
	}

	switch strings.ToLower(scheme) {
	case "http", "https":
		return locator, nil
	case "ipfs":
		if s.gateway == "" || rest == "" {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedLocator, locator)
		}
		return s.gateway + strings.TrimPrefix(rest, "ipfs/"), nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		return s.presign(ctx, bucket, key)
	case "minio":
		return s.presign(ctx, s.defaultBucket, rest)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocator, locator)
	}
}

func (s *Signer) presign(ctx context.Context, bucket, key string) (string, error) {
	if s.presigner == nil {
		return "", ErrSignerDisabled
	}
	key = strings.TrimPrefix(key, "/")
	if bucket == "" || key == "" {
		return "", fmt.Errorf("%w: bucket=%q key=%q", ErrUnsupportedLocator, bucket, key)
	}

	u, err := s.presigner.PresignedGetObject(ctx, bucket, key, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

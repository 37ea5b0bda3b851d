package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"oras.land/oras-go/v2/registry/remote/credentials"

	"github.com/meigma/packstream"
	"github.com/meigma/packstream/compress"
	packhttp "github.com/meigma/packstream/http"
	"github.com/meigma/packstream/oci"
	packs3 "github.com/meigma/packstream/s3"
)

const (
	decompressNone = "none"
	decompressZstd = "zstd"
	decompressLZ4  = "lz4"
)

type targetKind int

const (
	kindFile targetKind = iota
	kindHTTP
	kindS3
	kindOCI
)

// classify decides how target is opened. Digest references are recognised by
// the "@" separator since a local path rarely carries one.
func classify(target string) targetKind {
	if u, err := url.Parse(target); err == nil {
		switch u.Scheme {
		case "http", "https":
			return kindHTTP
		case "s3":
			return kindS3
		}
	}
	if strings.Contains(target, "@sha256:") || strings.Contains(target, "@sha512:") {
		return kindOCI
	}
	return kindFile
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func openSource(ctx context.Context, cfg config, logger *slog.Logger) (packstream.Source, error) {
	raw, err := openRaw(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var opts []compress.Option
	if cfg.size >= 0 {
		opts = append(opts, compress.WithSize(cfg.size))
	}
	var src packstream.Source
	switch cfg.decompress {
	case decompressNone, "":
		return raw, nil
	case decompressZstd:
		src, err = compress.NewZstd(raw, opts...)
	case decompressLZ4:
		src, err = compress.NewLZ4(raw, opts...)
	default:
		err = fmt.Errorf("unknown decompression %q", cfg.decompress)
	}
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return src, nil
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func openRaw(ctx context.Context, cfg config, logger *slog.Logger) (packstream.Source, error) {
	switch classify(cfg.target) {
	case kindHTTP:
		return packhttp.NewSource(ctx, cfg.target, packhttp.WithLogger(logger))
	case kindS3:
		return openS3(ctx, cfg.target)
	case kindOCI:
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			return nil, fmt.Errorf("load docker credentials: %w", err)
		}
		return oci.OpenBlob(ctx, cfg.target,
			oci.WithPlainHTTP(cfg.plainHTTP),
			oci.WithCredentialStore(store),
			oci.WithSourceOptions(oci.WithVerify(true), oci.WithLogger(logger)),
		)
	default:
		return packstream.OpenFile(cfg.target)
	}
}

func openS3(ctx context.Context, target string) (packstream.Source, error) {
	bucket, key, err := parseS3URL(target)
	if err != nil {
		return nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return packs3.NewSource(ctx, awss3.NewFromConfig(awsCfg), bucket, key)
}

func parseS3URL(target string) (bucket, key string, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.New("s3 url must be s3://bucket/key")
	}
	return bucket, key, nil
}

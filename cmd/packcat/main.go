// Command packcat prints a byte range of a file, URL, registry blob or S3
// object, optionally decompressing it first.
//
//	packcat -offset 12 -length 64 ./objects/pack/pack-1234.pack
//	packcat -decompress zstd https://example.com/data.zst
//	packcat ghcr.io/org/repo@sha256:...
//	packcat -decompress lz4 -size 1048576 s3://bucket/key.lz4
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/meigma/packstream"
)

type config struct {
	target     string
	offset     int64
	length     int64
	decompress string
	size       int64
	plainHTTP  bool
	timeout    time.Duration
	verbose    bool
}

func main() {
	cfg := parseFlags()

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("packcat failed", "target", cfg.target, "error", err)
		os.Exit(1) //nolint:gocritic // exitAfterDefer is acceptable, cleanup is best-effort
	}
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func run(ctx context.Context, cfg config, logger *slog.Logger, w io.Writer) error {
	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	s, err := packstream.New(src, packstream.WithLogger(logger))
	if err != nil {
		_ = src.Close()
		return err
	}
	defer s.Close()

	pos, err := s.Seek(cfg.offset, io.SeekStart)
	if err != nil {
		return fmt.Errorf("seek %d: %w", cfg.offset, err)
	}
	if pos < cfg.offset {
		logger.Warn("offset past end of content", "offset", cfg.offset, "size", s.Len())
	}

	var r io.Reader = s
	if cfg.length >= 0 {
		r = io.LimitReader(s, cfg.length)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	logger.Debug("range written", "offset", pos, "bytes", n, "size", s.Len())
	return s.Close()
}

func parseFlags() config {
	var cfg config
	flag.Int64Var(&cfg.offset, "offset", 0, "first byte to print")
	flag.Int64Var(&cfg.length, "length", -1, "number of bytes to print (-1 prints to the end)")
	flag.StringVar(&cfg.decompress, "decompress", decompressNone, "decompression: none, zstd or lz4")
	flag.Int64Var(&cfg.size, "size", -1, "decompressed size (required for lz4, optional for zstd)")
	flag.BoolVar(&cfg.plainHTTP, "plain-http", false, "talk to OCI registries over plain HTTP")
	flag.DurationVar(&cfg.timeout, "timeout", 0, "overall timeout (0 disables)")
	flag.BoolVar(&cfg.verbose, "v", false, "log fills and source events to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <path|url|oci-ref|s3://bucket/key>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cfg.target = flag.Arg(0)
	if cfg.offset < 0 {
		log.Fatalf("offset: must not be negative, got %d", cfg.offset)
	}
	return cfg
}

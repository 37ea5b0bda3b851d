// Package oci provides a packstream.Source for blobs stored in an OCI
// registry or any other ORAS content store.
//
// The blob is downloaded with one Fetch, opened on the first Read, and its
// digest is verified as the bytes go by.
package oci

import (
	"context"
	_ "crypto/sha256" // register sha256 for digest verification
	_ "crypto/sha512" // register sha384/sha512 for digest verification
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
)

var (
	// ErrInvalidDescriptor is returned when a descriptor lacks a valid digest
	// or size.
	ErrInvalidDescriptor = errors.New("oci: invalid descriptor")

	// ErrDigestMismatch is returned by the Read that completes the blob when
	// its content does not match the descriptor digest.
	ErrDigestMismatch = errors.New("oci: digest mismatch")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("oci: source closed")
)

// Source streams one blob described by an OCI descriptor.
// It satisfies packstream.Source.
type Source struct {
	ctx      context.Context
	fetcher  content.Fetcher
	desc     ocispec.Descriptor
	verify   bool
	logger   *slog.Logger
	rc       io.ReadCloser
	verifier digest.Verifier
	off      int64
	closed   bool
}

// Option configures a Source.
type Option func(*Source)

// WithVerify controls digest verification (default: true).
func WithVerify(enabled bool) Option {
	return func(s *Source) {
		s.verify = enabled
	}
}

// WithLogger sets the logger used for fetch events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource returns a Source for desc. Nothing is fetched until the first
// Read; ctx bounds that fetch.
func NewSource(ctx context.Context, fetcher content.Fetcher, desc ocispec.Descriptor, opts ...Option) (*Source, error) {
	if err := validateDescriptor(&desc); err != nil {
		return nil, err
	}
	s := &Source{
		ctx:     ctx,
		fetcher: fetcher,
		desc:    desc,
		verify:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.verify {
		s.verifier = desc.Digest.Verifier()
	}
	return s, nil
}

func (s *Source) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Size returns the blob size from the descriptor.
func (s *Source) Size() int64 {
	return s.desc.Size
}

// Descriptor returns the descriptor the Source was created with.
func (s *Source) Descriptor() ocispec.Descriptor {
	return s.desc
}

// Read reads the next bytes of the blob, fetching it on first use.
func (s *Source) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.off >= s.desc.Size {
		return 0, io.EOF
	}
	if s.rc == nil {
		rc, err := s.fetcher.Fetch(s.ctx, s.desc)
		if err != nil {
			return 0, fmt.Errorf("fetch %s: %w", s.desc.Digest, err)
		}
		s.rc = rc
		s.log().Debug("oci blob fetch started", "digest", s.desc.Digest, "size", s.desc.Size)
	}

	if rem := s.desc.Size - s.off; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := s.rc.Read(p)
	if n > 0 && s.verifier != nil {
		_, _ = s.verifier.Write(p[:n]) //nolint:errcheck // hash writes never fail
	}
	s.off += int64(n)

	if s.off == s.desc.Size {
		if s.verifier != nil && !s.verifier.Verified() {
			return n, fmt.Errorf("%w: %s", ErrDigestMismatch, s.desc.Digest)
		}
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	if err == io.EOF {
		return n, fmt.Errorf("fetch %s at %d of %d: %w", s.desc.Digest, s.off, s.desc.Size, io.ErrUnexpectedEOF)
	}
	return n, err
}

// Close releases the download, if one was started.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.rc == nil {
		return nil
	}
	return s.rc.Close()
}

func validateDescriptor(desc *ocispec.Descriptor) error {
	if desc.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidDescriptor, desc.Size)
	}
	if err := desc.Digest.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return nil
}

package oci

import (
	"context"
	"fmt"

	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// RegistryOption configures OpenBlob.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	plainHTTP bool
	credStore credentials.Store
	userAgent string
	opts      []Option
}

// WithPlainHTTP talks to the registry over HTTP instead of HTTPS.
func WithPlainHTTP(enabled bool) RegistryOption {
	return func(c *registryConfig) {
		c.plainHTTP = enabled
	}
}

// WithCredentialStore sets where registry credentials are looked up.
// Without it, requests are anonymous.
func WithCredentialStore(store credentials.Store) RegistryOption {
	return func(c *registryConfig) {
		c.credStore = store
	}
}

// WithSourceOptions passes options to the returned Source.
func WithSourceOptions(opts ...Option) RegistryOption {
	return func(c *registryConfig) {
		c.opts = append(c.opts, opts...)
	}
}

// OpenBlob resolves a digest reference such as
// "ghcr.io/org/repo@sha256:..." and returns a Source for that blob.
func OpenBlob(ctx context.Context, reference string, opts ...RegistryOption) (*Source, error) {
	cfg := registryConfig{userAgent: "packstream/1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}

	ref, err := registry.ParseReference(reference)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", reference, err)
	}
	if _, err := ref.Digest(); err != nil {
		return nil, fmt.Errorf("reference %q: %w", reference, err)
	}

	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("repository %q: %w", reference, err)
	}
	repo.PlainHTTP = cfg.plainHTTP
	repo.Client = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if cfg.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return cfg.credStore.Get(ctx, hostport)
		},
		Header: map[string][]string{
			"User-Agent": {cfg.userAgent},
		},
	}

	blobs := repo.Blobs()
	desc, err := blobs.Resolve(ctx, ref.Reference)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", reference, err)
	}
	return NewSource(ctx, blobs, desc, cfg.opts...)
}

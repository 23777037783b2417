// Package ocitag implements a vcache backend over a single OCI repository.
//
// Names are tags, objects are manifest snapshots, and the fingerprint is
// the manifest digest, resolved with a cheap HEAD request. Artifacts whose
// image carries a zstd payload layer get the decoded payload attached.
package ocitag

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"

	"github.com/aweris/vcache"
)

var _ vcache.Backend[string, *Artifact, string] = (*Backend)(nil)

// Payload layers above this size are left undecoded.
const maxPayloadSize = 16 << 20

var zstdDecoder, _ = zstd.NewReader(nil)

// Artifact is a snapshot of one tagged manifest.
type Artifact struct {
	Tag       string
	Digest    string
	MediaType string
	Manifest  []byte

	// Labels come from the image config, when the manifest is an image.
	Labels map[string]string

	// Payload is the decoded content of the first zstd layer, when one
	// exists and is small enough.
	Payload []byte
}

// Backend resolves tags of one repository.
type Backend struct {
	repo name.Repository
	auth Authenticator
}

// Option configures a Backend.
type Option func(*Backend)

// WithAuth sets custom authentication. The default uses the system
// keychain, like Docker.
func WithAuth(auth Authenticator) Option {
	return func(b *Backend) { b.auth = auth }
}

// New creates a backend for a repository ref (e.g., "ttl.sh/myorg/cache").
func New(repository string, opts ...Option) (*Backend, error) {
	repo, err := name.NewRepository(repository)
	if err != nil {
		return nil, fmt.Errorf("invalid repository %q: %w", repository, err)
	}
	b := &Backend{repo: repo}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// List returns the repository's current tags.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	tags, err := retry(ctx, 3, func() ([]string, error) {
		return remote.List(b.repo, b.remoteOptions(ctx)...)
	})
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", b.repo, err)
	}
	return tags, nil
}

// Hash resolves the manifest digest for a tag with a HEAD request.
func (b *Backend) Hash(ctx context.Context, tag string) (string, bool, error) {
	desc, err := retry(ctx, 3, func() (*v1.Descriptor, error) {
		return remote.Head(b.repo.Tag(tag), b.remoteOptions(ctx)...)
	})
	if err != nil {
		return "", false, fmt.Errorf("head %s:%s: %w", b.repo, tag, err)
	}
	return desc.Digest.String(), true, nil
}

// Fetch downloads the manifest for a tag, plus config labels and the zstd
// payload layer when the manifest is an image. Payload extraction is
// best-effort: an index or an oversized layer leaves Payload nil.
func (b *Backend) Fetch(ctx context.Context, tag string) (*Artifact, error) {
	desc, err := retry(ctx, 3, func() (*remote.Descriptor, error) {
		return remote.Get(b.repo.Tag(tag), b.remoteOptions(ctx)...)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s:%s: %w", b.repo, tag, err)
	}

	art := &Artifact{
		Tag:       tag,
		Digest:    desc.Digest.String(),
		MediaType: string(desc.MediaType),
		Manifest:  desc.Manifest,
	}

	if img, err := desc.Image(); err == nil {
		if cfg, err := img.ConfigFile(); err == nil && cfg != nil {
			art.Labels = cfg.Config.Labels
		}
		if payload, err := extractPayload(img); err == nil {
			art.Payload = payload
		}
	}
	return art, nil
}

// HashOf returns the digest an artifact was fetched at.
func (b *Backend) HashOf(art *Artifact) (string, bool, error) {
	if art == nil {
		return "", false, errors.New("ocitag: nil artifact")
	}
	if art.Digest == "" {
		return "", false, nil
	}
	return art.Digest, true, nil
}

// extractPayload returns the decoded content of the first zstd layer.
func extractPayload(img v1.Image) ([]byte, error) {
	layers, err := img.Layers()
	if err != nil {
		return nil, err
	}

	for _, layer := range layers {
		mt, err := layer.MediaType()
		if err != nil || mt != types.OCILayerZStd {
			continue
		}
		if size, err := layer.Size(); err != nil || size > maxPayloadSize {
			continue
		}

		rc, err := layer.Compressed()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(data, nil)
	}
	return nil, nil
}

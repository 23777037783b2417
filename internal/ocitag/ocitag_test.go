package ocitag

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var zstdEncoder, _ = zstd.NewWriter(nil)

// newTestRepo starts an in-memory registry and returns a backend for one
// repository in it.
func newTestRepo(t *testing.T) (*Backend, string) {
	t.Helper()
	srv := httptest.NewServer(registry.New())
	t.Cleanup(srv.Close)

	repoRef := strings.TrimPrefix(srv.URL, "http://") + "/test/cache"
	b, err := New(repoRef)
	require.NoError(t, err)
	return b, repoRef
}

// pushImage publishes an image under a tag, optionally with labels and a
// zstd payload layer, and returns its digest.
func pushImage(t *testing.T, repoRef, tag string, labels map[string]string, payload []byte) string {
	t.Helper()

	img := empty.Image
	var err error
	if payload != nil {
		layer := static.NewLayer(zstdEncoder.EncodeAll(payload, nil), types.OCILayerZStd)
		img, err = mutate.AppendLayers(img, layer)
		require.NoError(t, err)
	}
	if labels != nil {
		cfg, err := img.ConfigFile()
		require.NoError(t, err)
		cfg.Config.Labels = labels
		img, err = mutate.ConfigFile(img, cfg)
		require.NoError(t, err)
	}

	ref, err := name.NewTag(repoRef + ":" + tag)
	require.NoError(t, err)
	require.NoError(t, remote.Write(ref, img))

	digest, err := img.Digest()
	require.NoError(t, err)
	return digest.String()
}

func TestList(t *testing.T) {
	b, repoRef := newTestRepo(t)
	pushImage(t, repoRef, "v1", nil, nil)
	pushImage(t, repoRef, "v2", nil, nil)

	tags, err := b.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, tags)
}

func TestHash(t *testing.T) {
	b, repoRef := newTestRepo(t)
	want := pushImage(t, repoRef, "v1", nil, nil)

	digest, ok, err := b.Hash(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, digest)
}

func TestFetch(t *testing.T) {
	b, repoRef := newTestRepo(t)
	labels := map[string]string{"dev.vcache.kind": "snapshot"}
	payload := []byte("payload bytes")
	want := pushImage(t, repoRef, "v1", labels, payload)

	art, err := b.Fetch(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", art.Tag)
	assert.Equal(t, want, art.Digest)
	assert.NotEmpty(t, art.Manifest)
	assert.Equal(t, labels, art.Labels)
	assert.Equal(t, payload, art.Payload)
}

func TestFetch_WithoutPayloadLayer(t *testing.T) {
	b, repoRef := newTestRepo(t)
	pushImage(t, repoRef, "v1", nil, nil)

	art, err := b.Fetch(context.Background(), "v1")
	require.NoError(t, err)
	assert.Nil(t, art.Payload)
}

func TestHashOf(t *testing.T) {
	b, _ := newTestRepo(t)

	digest, ok, err := b.HashOf(&Artifact{Digest: "sha256:abc"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sha256:abc", digest)

	_, ok, err = b.HashOf(&Artifact{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = b.HashOf(nil)
	require.Error(t, err)
}

func TestRoundTripDigestsMatch(t *testing.T) {
	b, repoRef := newTestRepo(t)
	pushImage(t, repoRef, "v1", nil, []byte("data"))

	art, err := b.Fetch(context.Background(), "v1")
	require.NoError(t, err)

	local, ok, err := b.HashOf(art)
	require.NoError(t, err)
	require.True(t, ok)

	current, ok, err := b.Hash(context.Background(), "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, current, local, "an unchanged tag must validate as a hit")
}

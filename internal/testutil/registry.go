package testutil

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/stretchr/testify/require"
)

// InMemoryRegistry serves the registry API without a network listener.
type InMemoryRegistry struct {
	RoundTripper http.RoundTripper
	Handler      http.Handler
	CraneOpt     crane.Option
}

type (
	inMemoryRegistryWriter struct {
		resp *http.Response
		body *bytes.Buffer
	}
	inMemoryRegistryRoundTripper struct {
		handler http.Handler
	}
)

func NewInMemoryRegistry() *InMemoryRegistry {
	r := &InMemoryRegistry{}
	r.Handler = registry.New(registry.Logger(log.New(io.Discard, "", 0)))
	r.RoundTripper = &inMemoryRegistryRoundTripper{r.Handler}
	r.CraneOpt = crane.WithTransport(r.RoundTripper)

	return r
}

func (w *inMemoryRegistryWriter) Header() http.Header { return w.resp.Header }

func (w *inMemoryRegistryWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *inMemoryRegistryWriter) WriteHeader(statusCode int) { w.resp.StatusCode = statusCode }

func (t inMemoryRegistryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil {
		req.Body = io.NopCloser(&bytes.Buffer{})
	}
	body := &bytes.Buffer{}
	resp := &http.Response{Status: "ok", StatusCode: http.StatusOK, Header: http.Header{}, Request: req}
	w := &inMemoryRegistryWriter{resp: resp, body: body}
	t.handler.ServeHTTP(w, req)
	resp.ContentLength = int64(body.Len())
	resp.Body = io.NopCloser(body)

	return resp, nil
}

// FlakyRoundTripper fails the first Failures requests with a connection
// error before delegating.
type FlakyRoundTripper struct {
	Next     http.RoundTripper
	Failures int

	mux   sync.Mutex
	calls int
}

var ErrConnectionReset = errors.New("connection reset by peer")

func (t *FlakyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mux.Lock()
	t.calls++
	failing := t.calls <= t.Failures
	t.mux.Unlock()

	if failing {
		return nil, ErrConnectionReset
	}

	return t.Next.RoundTrip(req)
}

func (t *FlakyRoundTripper) Calls() int {
	t.mux.Lock()
	defer t.mux.Unlock()

	return t.calls
}

// BuildImage returns a single layer linux image with the given config.
func BuildImage(t *testing.T, layerData map[string][]byte, cfg v1.Config, arch string) v1.Image {
	t.Helper()

	configFile := &v1.ConfigFile{
		Architecture: arch,
		OS:           "linux",
		Config:       cfg,
		RootFS:       v1.RootFS{Type: "layers"},
	}
	image, err := mutate.ConfigFile(empty.Image, configFile)
	require.NoError(t, err)

	layer, err := crane.Layer(layerData)
	require.NoError(t, err)

	image, err = mutate.AppendLayers(image, layer)
	require.NoError(t, err)

	image, err = mutate.Canonical(image)
	require.NoError(t, err)

	return image
}

// WriteArchive stores img as a docker-save style archive tagged ref.
func WriteArchive(t *testing.T, path, ref string, img v1.Image) {
	t.Helper()

	tag, err := name.NewTag(ref)
	require.NoError(t, err)
	require.NoError(t, tarball.WriteToFile(path, tag, img))
}

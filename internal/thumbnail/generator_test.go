package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
}

func TestHTTPGeneratorPostsPrompt(t *testing.T) {
	var got generateBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	}))
	defer srv.Close()

	g, err := NewHTTPGenerator(srv.URL, "key-1", srv.Client())
	require.NoError(t, err)
	img, err := g.Generate(context.Background(), GenerateRequest{Prompt: "a cat", AspectRatio: "1:1", ColorScheme: "pastel"})
	require.NoError(t, err)

	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, []byte("\x89PNG fake"), img.Data)
	assert.Equal(t, generateBody{Prompt: "a cat", AspectRatio: "1:1", ColorScheme: "pastel"}, got)
}

func TestHTTPGeneratorRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	g, err := NewHTTPGenerator(srv.URL, "", srv.Client())
	require.NoError(t, err)
	g.backoff = fastBackoff

	img, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPGeneratorDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g, err := NewHTTPGenerator(srv.URL, "", srv.Client())
	require.NoError(t, err)
	g.backoff = fastBackoff

	_, err = g.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPGeneratorRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	g, err := NewHTTPGenerator(srv.URL, "", srv.Client())
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	assert.Error(t, err)
}

func TestNewHTTPGeneratorRequiresURL(t *testing.T) {
	_, err := NewHTTPGenerator(" ", "", nil)
	assert.Error(t, err)
}

func TestPlaceholderGeneratorRendersAspectRatio(t *testing.T) {
	g := PlaceholderGenerator{Scale: 8}
	cases := map[string][2]int{
		"16:9": {160, 90},
		"1:1":  {128, 128},
		"9:16": {90, 160},
	}
	for ar, want := range cases {
		img, err := g.Generate(context.Background(), GenerateRequest{AspectRatio: ar, ColorScheme: "sunset"})
		require.NoError(t, err, ar)
		assert.Equal(t, "image/png", img.ContentType)

		decoded, err := png.Decode(bytes.NewReader(img.Data))
		require.NoError(t, err, ar)
		b := decoded.Bounds()
		assert.Equal(t, want[0], b.Dx(), ar)
		assert.Equal(t, want[1], b.Dy(), ar)
	}
}

func TestPlaceholderGeneratorUsesSchemeColors(t *testing.T) {
	img, err := PlaceholderGenerator{Scale: 16}.Generate(context.Background(), GenerateRequest{AspectRatio: "1:1", ColorScheme: "monochrome"})
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)

	r, g, b, _ := decoded.At(0, 0).RGBA()
	first := colorSchemes["monochrome"].Colors[0]
	assert.Equal(t, uint32(first.R), r>>8)
	assert.Equal(t, uint32(first.G), g>>8)
	assert.Equal(t, uint32(first.B), b>>8)
}

func TestPlaceholderGeneratorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := PlaceholderGenerator{}.Generate(ctx, GenerateRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

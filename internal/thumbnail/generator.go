package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// maxImageBytes bounds what an external generator may return.
const maxImageBytes = 20 << 20

type Image struct {
	Data        []byte
	ContentType string
}

type GenerateRequest struct {
	Prompt      string
	AspectRatio string
	ColorScheme string
}

// Generator produces the image for a job. Implementations must honour ctx.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Image, error)
}

// HTTPGenerator delegates to an external image service. It POSTs the prompt
// as JSON and expects raw image bytes back.
type HTTPGenerator struct {
	url     string
	apiKey  string
	client  *http.Client
	backoff func() retry.Backoff
}

func NewHTTPGenerator(url, apiKey string, client *http.Client) (*HTTPGenerator, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("generator url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPGenerator{
		url:    url,
		apiKey: apiKey,
		client: client,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
		},
	}, nil
}

type generateBody struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	ColorScheme string `json:"color_scheme,omitempty"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (Image, error) {
	body, err := json.Marshal(generateBody{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		ColorScheme: req.ColorScheme,
	})
	if err != nil {
		return Image{}, fmt.Errorf("encode generator request: %w", err)
	}

	var img Image
	err = retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		var err error
		img, err = g.do(ctx, body)
		return err
	})
	if err != nil {
		return Image{}, err
	}
	return img, nil
}

// do performs one attempt. Network errors and 5xx/429 answers are retryable.
func (g *HTTPGenerator) do(ctx context.Context, body []byte) (Image, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Image{}, fmt.Errorf("build generator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/*")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Image{}, fmt.Errorf("call generator: %w", err)
		}
		return Image{}, retry.RetryableError(fmt.Errorf("call generator: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		err := fmt.Errorf("generator returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return Image{}, retry.RetryableError(err)
		}
		return Image{}, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read generator response: %w", err)
	}
	if len(data) > maxImageBytes {
		return Image{}, fmt.Errorf("generator response exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return Image{}, errors.New("generator returned an empty image")
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		ct = http.DetectContentType(data)
		if !strings.HasPrefix(ct, "image/") {
			return Image{}, fmt.Errorf("generator returned non-image content %q", ct)
		}
	}
	return Image{Data: data, ContentType: ct}, nil
}

// PlaceholderGenerator renders a diagonal gradient from the color scheme in
// the requested aspect ratio. It stands in when no external generator is
// configured.
type PlaceholderGenerator struct {
	// Scale divides the catalogue dimensions; zero means 1.
	Scale int
}

func (g PlaceholderGenerator) Generate(ctx context.Context, req GenerateRequest) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	size, ok := aspectSizes[req.AspectRatio]
	if !ok {
		size = aspectSizes[DefaultAspectRatio]
	}
	cs, ok := colorSchemes[req.ColorScheme]
	if !ok {
		cs = colorSchemes[DefaultColorScheme]
	}
	scale := g.Scale
	if scale < 1 {
		scale = 1
	}
	w, h := size[0]/scale, size[1]/scale

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	span := float64(w + h - 2)
	if span <= 0 {
		span = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, gradientAt(cs.Colors, float64(x+y)/span))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Image{}, fmt.Errorf("encode placeholder: %w", err)
	}
	return Image{Data: buf.Bytes(), ContentType: "image/png"}, nil
}

// gradientAt interpolates linearly across stops for t in [0, 1].
func gradientAt(stops []color.RGBA, t float64) color.RGBA {
	switch len(stops) {
	case 0:
		return color.RGBA{A: 0xFF}
	case 1:
		return stops[0]
	}
	if t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[len(stops)-1]
	}
	pos := t * float64(len(stops)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f) }
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xFF}
}

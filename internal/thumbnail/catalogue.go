package thumbnail

import (
	"fmt"
	"image/color"
	"strings"
)

const (
	DefaultStyle       = "Bold & Graphic"
	DefaultAspectRatio = "16:9"
	DefaultColorScheme = "vibrant"
)

var styleDescriptions = map[string]string{
	"Bold & Graphic":  "eye-catching thumbnail, bold typography, vibrant colors, expressive facial reaction, dramatic lighting, high contrast, click-worthy composition, professional style",
	"Tech/Futuristic": "futuristic thumbnail, sleek modern design, digital UI elements, glowing accents, holographic effects, cyber-tech aesthetic, sharp lighting, high-tech atmosphere",
	"Minimalist":      "minimalist thumbnail, clean layout, simple shapes, limited color palette, plenty of negative space, modern flat design, clear focal point",
	"Photorealistic":  "photorealistic thumbnail, ultra-realistic lighting, natural skin tones, candid moment, DSLR-style photography, lifestyle realism, shallow depth of field",
	"Illustrated":     "illustrated thumbnail, custom digital illustration, stylized characters, bold outlines, vibrant colors, creative cartoon or vector art style",
}

type ColorScheme struct {
	ID          string
	Name        string
	Description string
	Colors      []color.RGBA
}

var colorSchemes = map[string]ColorScheme{
	"vibrant": {
		ID: "vibrant", Name: "Vibrant",
		Description: "vibrant and energetic colors, high saturation, bold contrasts, eye-catching palette",
		Colors:      []color.RGBA{rgb(0xFF, 0x00, 0x00), rgb(0xFF, 0xD7, 0x00), rgb(0x00, 0xFF, 0x00)},
	},
	"sunset": {
		ID: "sunset", Name: "Sunset",
		Description: "warm sunset tones, orange pink and purple hues, soft gradients, cinematic glow",
		Colors:      []color.RGBA{rgb(0xFF, 0x6B, 0x35), rgb(0xF7, 0xC5, 0x9F), rgb(0xFF, 0xE6, 0x6D)},
	},
	"forest": {
		ID: "forest", Name: "Forest",
		Description: "natural green tones, earthy colors, calm and organic palette, fresh atmosphere",
		Colors:      []color.RGBA{rgb(0x2D, 0x50, 0x16), rgb(0x68, 0xA6, 0x1D), rgb(0xA4, 0xC6, 0x39)},
	},
	"neon": {
		ID: "neon", Name: "Neon",
		Description: "neon glow effects, electric blues and pinks, cyberpunk lighting, high contrast glow",
		Colors:      []color.RGBA{rgb(0xFF, 0x00, 0xFF), rgb(0x00, 0xFF, 0xFF), rgb(0xFF, 0xFF, 0x00)},
	},
	"purple": {
		ID: "purple", Name: "Purple Dream",
		Description: "purple-dominant color palette, magenta and violet tones, modern and stylish mood",
		Colors:      []color.RGBA{rgb(0x8B, 0x5C, 0xF6), rgb(0xEC, 0x48, 0x99), rgb(0xC0, 0x84, 0xFC)},
	},
	"monochrome": {
		ID: "monochrome", Name: "Monochrome",
		Description: "black and white color scheme, high contrast, dramatic lighting, timeless aesthetic",
		Colors:      []color.RGBA{rgb(0x1F, 0x29, 0x37), rgb(0x6B, 0x72, 0x80), rgb(0xD1, 0xD5, 0xDB)},
	},
	"ocean": {
		ID: "ocean", Name: "Ocean",
		Description: "cool blue and teal tones, aquatic color palette, fresh and clean atmosphere",
		Colors:      []color.RGBA{rgb(0x06, 0x6B, 0x9B), rgb(0x08, 0x91, 0xB2), rgb(0x67, 0xE8, 0xF9)},
	},
	"pastel": {
		ID: "pastel", Name: "Pastel",
		Description: "soft pastel colors, low saturation, gentle tones, calm and friendly aesthetic",
		Colors:      []color.RGBA{rgb(0xFB, 0xCF, 0xE8), rgb(0xDD, 0xD6, 0xFE), rgb(0xBF, 0xDB, 0xFE)},
	},
}

// aspectSizes are the pixel dimensions used when rendering locally.
var aspectSizes = map[string][2]int{
	"16:9": {1280, 720},
	"1:1":  {1024, 1024},
	"9:16": {720, 1280},
}

func rgb(r, g, b uint8) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 0xFF} }

func LookupColorScheme(id string) (ColorScheme, bool) {
	cs, ok := colorSchemes[id]
	return cs, ok
}

// normalize applies defaults to blank enum fields and rejects unknown values.
func normalize(p Params) (Params, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Title == "" {
		return Params{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if p.Style == "" {
		p.Style = DefaultStyle
	}
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if p.ColorScheme == "" {
		p.ColorScheme = DefaultColorScheme
	}
	if _, ok := styleDescriptions[p.Style]; !ok {
		return Params{}, fmt.Errorf("%w: unknown style %q", ErrInvalidInput, p.Style)
	}
	if _, ok := aspectSizes[p.AspectRatio]; !ok {
		return Params{}, fmt.Errorf("%w: unknown aspect ratio %q", ErrInvalidInput, p.AspectRatio)
	}
	if _, ok := colorSchemes[p.ColorScheme]; !ok {
		return Params{}, fmt.Errorf("%w: unknown color scheme %q", ErrInvalidInput, p.ColorScheme)
	}
	return p, nil
}

// BuildPrompt renders the text prompt sent to the image generator. p must
// already be normalized.
func BuildPrompt(p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s for: %q.", styleDescriptions[p.Style], p.Title)
	if cs, ok := colorSchemes[p.ColorScheme]; ok {
		fmt.Fprintf(&b, " Use a %s color scheme.", cs.Description)
	}
	if p.Prompt != "" {
		fmt.Fprintf(&b, " Additional details: %s.", p.Prompt)
	}
	if p.TextOverlay {
		b.WriteString(" Include the title as bold, legible text overlay.")
	}
	fmt.Fprintf(&b, " The thumbnail should be %s, visually stunning, and designed to maximize click-through rate.", p.AspectRatio)
	return b.String()
}

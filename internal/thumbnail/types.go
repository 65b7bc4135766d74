package thumbnail

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Thumbnail is a generation request and, once terminal, its result. ImageURL
// stays nil until the thumbnail is ready.
type Thumbnail struct {
	ID          string    `json:"_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	UserPrompt  string    `json:"user_prompt"`
	Style       string    `json:"style"`
	AspectRatio string    `json:"aspect_ratio"`
	ColorScheme string    `json:"color_scheme"`
	TextOverlay bool      `json:"text_overlay"`
	Status      Status    `json:"status"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Params are the caller-supplied generation parameters. Blank enum fields take
// their defaults.
type Params struct {
	Title       string
	Prompt      string
	Style       string
	AspectRatio string
	ColorScheme string
	TextOverlay bool
}

// Outcome is a completion signal for a pending thumbnail.
type Outcome struct {
	Status   Status
	ImageURL string
}

func Ready(url string) Outcome { return Outcome{Status: StatusReady, ImageURL: url} }

func Failed() Outcome { return Outcome{Status: StatusFailed} }

// Job is the unit of work handed to the dispatcher.
type Job struct {
	ThumbnailID string
	UserID      string
	Prompt      string
	AspectRatio string
	ColorScheme string
}

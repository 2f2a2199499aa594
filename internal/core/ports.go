package core

import (
	"context"
	"time"
)

// Product is the structured output of the product search collaborator.
type Product struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	ImageURL    string  `json:"image_url"`
	ProductURL  string  `json:"product_url"`
	ASIN        string  `json:"asin"`
}

// Record is a row in the record store backing the pipeline queue.
type Record struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Fields map[string]any `json:"fields"`
}

// RecordStore is the spreadsheet-like backend tracking pipeline state.
type RecordStore interface {
	// GetPendingRecord returns the next record awaiting processing.
	// Returns nil and no error when the queue is empty.
	GetPendingRecord(ctx context.Context) (*Record, error)

	// UpdateRecord writes fields back to an existing record.
	UpdateRecord(ctx context.Context, id string, fields map[string]any) error
}

// ProductSearcher wraps the scraping collaborator. The core treats the
// result as opaque: a list of zero or more structured products, or an
// error.
type ProductSearcher interface {
	SearchAndScrape(ctx context.Context, query string, maxProducts int) ([]Product, error)
}

// GenerateResult is the envelope returned by content generation
// collaborators. The core cares only about this shape, not about which
// model or vendor produced it.
type GenerateResult struct {
	Path     string         `json:"path,omitempty"`
	Text     string         `json:"text,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ImageGenerator produces one image per prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*GenerateResult, error)
}

// TextGenerator produces the review script.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (*GenerateResult, error)
}

// VoiceGenerator narrates a script.
type VoiceGenerator interface {
	GenerateVoice(ctx context.Context, script string) (*GenerateResult, error)
}

// RenderOutput describes a rendered video file.
type RenderOutput struct {
	VideoPath string        `json:"video_path"`
	Duration  time.Duration `json:"duration"`
}

// VideoRenderer renders a video from assembled assets.
type VideoRenderer interface {
	Render(ctx context.Context, template string, videoData map[string]any) (*RenderOutput, error)
}

// Publisher pushes finished content to one platform. Each platform
// runs as its own phase so a partial publish stays representable in
// the ledger.
type Publisher interface {
	Publish(ctx context.Context, content map[string]any, mediaPath string) (url string, err error)
}

// AssetStore uploads media files to shared storage and returns their
// public locations.
type AssetStore interface {
	Upload(ctx context.Context, paths []string) (urls []string, err error)
}

// Collaborators bundles every external dependency the domain agents
// need. Constructed once at startup and injected.
type Collaborators struct {
	Records   RecordStore
	Searcher  ProductSearcher
	Images    ImageGenerator
	Texts     TextGenerator
	Voices    VoiceGenerator
	Renderer  VideoRenderer
	Assets    AssetStore
	YouTube   Publisher
	WordPress Publisher
	Instagram Publisher
}

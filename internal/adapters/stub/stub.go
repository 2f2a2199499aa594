// Package stub provides canned in-process collaborators. They back the
// test workflow type and dry runs, where the pipeline machinery should
// execute end to end without touching any external service.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reelforge/reelforge/internal/core"
)

// Collaborators returns a full bundle of stub implementations.
func Collaborators() core.Collaborators {
	return core.Collaborators{
		Records:   NewRecordStore("Top 5 Wireless Headphones"),
		Searcher:  &Searcher{},
		Images:    &Generator{},
		Texts:     &Generator{},
		Voices:    &Generator{},
		Renderer:  &Renderer{},
		Assets:    &AssetStore{},
		YouTube:   &Publisher{Platform: "youtube"},
		WordPress: &Publisher{Platform: "wordpress"},
		Instagram: &Publisher{Platform: "instagram"},
	}
}

// RecordStore serves a fixed pending record and remembers updates.
type RecordStore struct {
	mu      sync.Mutex
	title   string
	updates map[string]map[string]any
}

// NewRecordStore creates a store with one pending record.
func NewRecordStore(title string) *RecordStore {
	return &RecordStore{
		title:   title,
		updates: make(map[string]map[string]any),
	}
}

func (s *RecordStore) GetPendingRecord(_ context.Context) (*core.Record, error) {
	return &core.Record{
		ID:     "rec_stub_001",
		Title:  s.title,
		Fields: map[string]any{"status": "pending", "title": s.title},
	}, nil
}

func (s *RecordStore) UpdateRecord(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[id] = fields
	return nil
}

// Updates returns the fields written for a record ID.
func (s *RecordStore) Updates(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[id]
}

// Searcher fabricates products for any query.
type Searcher struct{}

func (s *Searcher) SearchAndScrape(_ context.Context, query string, maxProducts int) ([]core.Product, error) {
	products := make([]core.Product, 0, maxProducts)
	for i := 0; i < maxProducts; i++ {
		products = append(products, core.Product{
			Title:       fmt.Sprintf("%s pick %d", query, i+1),
			Price:       19.99 + float64(i)*10,
			Rating:      4.8 - float64(i)*0.1,
			ReviewCount: 1200 - i*100,
			ImageURL:    fmt.Sprintf("https://example.invalid/img/%d.jpg", i+1),
			ProductURL:  fmt.Sprintf("https://example.invalid/p/%d", i+1),
			ASIN:        fmt.Sprintf("B0STUB%04d", i+1),
		})
	}
	return products, nil
}

// Generator serves all three generation ports with deterministic
// output.
type Generator struct{}

func (g *Generator) GenerateImage(_ context.Context, prompt string) (*core.GenerateResult, error) {
	return &core.GenerateResult{Path: fmt.Sprintf("/tmp/stub_image_%d.png", hash(prompt))}, nil
}

func (g *Generator) GenerateText(_ context.Context, prompt string) (*core.GenerateResult, error) {
	return &core.GenerateResult{Text: "Stub script for: " + prompt}, nil
}

func (g *Generator) GenerateVoice(_ context.Context, script string) (*core.GenerateResult, error) {
	return &core.GenerateResult{Path: fmt.Sprintf("/tmp/stub_voice_%d.mp3", hash(script))}, nil
}

// Renderer returns a fixed 90 second video.
type Renderer struct{}

func (r *Renderer) Render(_ context.Context, template string, _ map[string]any) (*core.RenderOutput, error) {
	return &core.RenderOutput{
		VideoPath: "/tmp/stub_" + template + ".mp4",
		Duration:  90 * time.Second,
	}, nil
}

// AssetStore echoes paths back as fake URLs.
type AssetStore struct{}

func (s *AssetStore) Upload(_ context.Context, paths []string) ([]string, error) {
	urls := make([]string, len(paths))
	for i, p := range paths {
		urls[i] = "https://assets.example.invalid" + p
	}
	return urls, nil
}

// Publisher returns a fake URL per platform.
type Publisher struct {
	Platform string
}

func (p *Publisher) Publish(_ context.Context, _ map[string]any, _ string) (string, error) {
	return "https://" + p.Platform + ".example.invalid/v/stub", nil
}

func hash(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

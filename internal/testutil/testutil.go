// Package testutil holds collaborator fakes used across the test
// suites, including failing variants for error-path coverage.
package testutil

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/reelforge/reelforge/internal/adapters/stub"
	"github.com/reelforge/reelforge/internal/core"
)

// ErrBoom is the canned failure returned by the failing fakes.
var ErrBoom = errors.New("boom")

// Happy returns a collaborator bundle where every call succeeds.
func Happy() core.Collaborators {
	return stub.Collaborators()
}

// EmptyQueueRecords is a record store whose queue is always empty.
type EmptyQueueRecords struct{}

func (EmptyQueueRecords) GetPendingRecord(context.Context) (*core.Record, error) { return nil, nil }

func (EmptyQueueRecords) UpdateRecord(context.Context, string, map[string]any) error { return nil }

// FailingSearcher always errors.
type FailingSearcher struct{}

func (FailingSearcher) SearchAndScrape(context.Context, string, int) ([]core.Product, error) {
	return nil, ErrBoom
}

// JunkSearcher returns products that cannot pass validation.
type JunkSearcher struct{}

func (JunkSearcher) SearchAndScrape(_ context.Context, _ string, n int) ([]core.Product, error) {
	products := make([]core.Product, n)
	for i := range products {
		products[i] = core.Product{Title: "", Price: 0}
	}
	return products, nil
}

// FlakyImages fails every call whose zero-based index is in FailAt.
type FlakyImages struct {
	calls  atomic.Int32
	FailAt map[int32]bool
}

func (f *FlakyImages) GenerateImage(_ context.Context, prompt string) (*core.GenerateResult, error) {
	n := f.calls.Add(1) - 1
	if f.FailAt[n] {
		return nil, ErrBoom
	}
	return &core.GenerateResult{Path: "/tmp/fake_" + prompt[:min(8, len(prompt))] + ".png"}, nil
}

// Calls returns how many generations were attempted.
func (f *FlakyImages) Calls() int32 {
	return f.calls.Load()
}

// FailingImages fails every call.
type FailingImages struct{}

func (FailingImages) GenerateImage(context.Context, string) (*core.GenerateResult, error) {
	return nil, ErrBoom
}

// FailingRenderer always errors.
type FailingRenderer struct{}

func (FailingRenderer) Render(context.Context, string, map[string]any) (*core.RenderOutput, error) {
	return nil, ErrBoom
}

// ShortRenderer renders a video below any sane minimum duration.
type ShortRenderer struct{}

func (ShortRenderer) Render(_ context.Context, template string, _ map[string]any) (*core.RenderOutput, error) {
	return &core.RenderOutput{VideoPath: "/tmp/short_" + template + ".mp4", Duration: 2 * time.Second}, nil
}

// FailingPublisher always errors.
type FailingPublisher struct{}

func (FailingPublisher) Publish(context.Context, map[string]any, string) (string, error) {
	return "", ErrBoom
}

package core

import (
	"fmt"
	"time"
)

// Phase identifies one named unit of work in a pipeline run.
type Phase string

const (
	// PhaseFetchTitle pulls the next pending product-category title
	// from the record store.
	PhaseFetchTitle Phase = "fetch_title"

	// PhaseExtractCategory derives the search category from the raw title.
	PhaseExtractCategory Phase = "extract_category"

	// PhaseScrapeProducts queries the product search collaborator.
	PhaseScrapeProducts Phase = "scrape_products"

	// PhaseValidateProducts filters scraped products down to a usable set.
	PhaseValidateProducts Phase = "validate_products"

	// PhaseGenerateImages fans out one image generation per product.
	PhaseGenerateImages Phase = "generate_images"

	// PhaseGenerateText writes the review script.
	PhaseGenerateText Phase = "generate_text"

	// PhaseGenerateVoice narrates the script.
	PhaseGenerateVoice Phase = "generate_voice"

	// PhaseValidateContent checks generated assets before rendering.
	PhaseValidateContent Phase = "validate_content"

	// PhaseUploadAssets pushes media to the asset store.
	PhaseUploadAssets Phase = "upload_assets"

	// PhaseCreateVideo renders the standard video template.
	PhaseCreateVideo Phase = "create_video"

	// PhaseCreateWowVideo renders the high-production template.
	PhaseCreateWowVideo Phase = "create_wow_video"

	// PhaseValidateVideo sanity-checks the rendered file.
	PhaseValidateVideo Phase = "validate_video"

	PhasePublishYouTube   Phase = "publish_youtube"
	PhasePublishWordPress Phase = "publish_wordpress"
	PhasePublishInstagram Phase = "publish_instagram"

	// PhaseUpdateRecord writes publish results back to the record store.
	PhaseUpdateRecord Phase = "update_record"

	// PhaseFinalize produces the run report and releases resources.
	PhaseFinalize Phase = "finalize"
)

// PhaseStatus represents the lifecycle state of a phase.
type PhaseStatus string

const (
	PhaseStatusPending   PhaseStatus = "pending"
	PhaseStatusRunning   PhaseStatus = "running"
	PhaseStatusCompleted PhaseStatus = "completed"
	PhaseStatusFailed    PhaseStatus = "failed"
	PhaseStatusCancelled PhaseStatus = "cancelled"
	PhaseStatusPaused    PhaseStatus = "paused"
)

// PhaseState is the bookkeeping record for one phase within a run.
// CompletedAt is set only for completed and failed phases.
type PhaseState struct {
	Name        Phase          `json:"name"`
	Status      PhaseStatus    `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retries     int            `json:"retries"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Duration returns the elapsed execution time, or 0 when either
// timestamp is missing.
func (ps *PhaseState) Duration() time.Duration {
	if ps.StartedAt == nil || ps.CompletedAt == nil {
		return 0
	}
	return ps.CompletedAt.Sub(*ps.StartedAt)
}

// IsTerminal returns true once the phase reached a final state.
func (ps *PhaseState) IsTerminal() bool {
	return ps.Status == PhaseStatusCompleted ||
		ps.Status == PhaseStatusFailed ||
		ps.Status == PhaseStatusCancelled
}

// Clone returns a deep copy safe to hand to checkpoint snapshots.
func (ps *PhaseState) Clone() *PhaseState {
	cp := *ps
	if ps.StartedAt != nil {
		t := *ps.StartedAt
		cp.StartedAt = &t
	}
	if ps.CompletedAt != nil {
		t := *ps.CompletedAt
		cp.CompletedAt = &t
	}
	if ps.Result != nil {
		cp.Result = make(map[string]any, len(ps.Result))
		for k, v := range ps.Result {
			cp.Result[k] = v
		}
	}
	return &cp
}

// ValidPhase checks if a phase name is one of the known phases.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseFetchTitle, PhaseExtractCategory, PhaseScrapeProducts,
		PhaseValidateProducts, PhaseGenerateImages, PhaseGenerateText,
		PhaseGenerateVoice, PhaseValidateContent, PhaseUploadAssets,
		PhaseCreateVideo, PhaseCreateWowVideo, PhaseValidateVideo,
		PhasePublishYouTube, PhasePublishWordPress, PhasePublishInstagram,
		PhaseUpdateRecord, PhaseFinalize:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

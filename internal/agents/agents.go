// Package agents holds the five domain agents of the pipeline. Each
// one is a dispatch table from phase name to handler; handlers pull
// their inputs from the ledger, call exactly one sub-agent (or fan out
// over a batch) and normalize the result into the phase's output shape.
package agents

import (
	"github.com/reelforge/reelforge/internal/core"
)

// Sub-agent names, one per concrete unit of work.
const (
	subFetchRecord     = "fetch_record"
	subExtractCategory = "extract_category"
	subScrapeProducts  = "scrape_products"
	subGenerateImage   = "generate_image"
	subGenerateText    = "generate_text"
	subGenerateVoice   = "generate_voice"
	subUploadAssets    = "upload_assets"
	subRenderVideo     = "render_video"
	subPublishYouTube  = "publish_youtube"
	subPublishWP       = "publish_wordpress"
	subPublishIG       = "publish_instagram"
	subUpdateRecord    = "update_record"
	subHostMetrics     = "host_metrics"
)

// maxProducts caps how many products a video covers.
const maxProducts = 5

// errUnroutedPhase builds the error for a phase dispatched to the
// wrong agent.
func errUnroutedPhase(agent core.AgentID, phase core.Phase) error {
	return core.ErrValidation(core.CodeUnroutedPhase,
		"agent "+string(agent)+" does not handle phase "+phase.String())
}

// upstreamProducts extracts the typed product list an earlier phase
// stored in the ledger.
func upstreamProducts(task core.Task, phase core.Phase) ([]core.Product, error) {
	v, ok := task.Upstream(phase, "products")
	if !ok {
		return nil, core.ErrMissingInput(task.Phase, phase.String()+".products")
	}
	products, ok := v.([]core.Product)
	if !ok || len(products) == 0 {
		return nil, core.ErrMissingInput(task.Phase, phase.String()+".products")
	}
	return products, nil
}

package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/reelforge/reelforge/internal/agent"
	"github.com/reelforge/reelforge/internal/bus"
	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
)

// DataAcquisition owns the front of the pipeline: fetching the pending
// title, deriving the search category, scraping and validating
// products.
type DataAcquisition struct {
	*agent.Runtime
	log *logging.Logger
}

// NewDataAcquisition wires the agent and its sub-agents.
func NewDataAcquisition(b *bus.Bus, log *logging.Logger, collab core.Collaborators) *DataAcquisition {
	rt := agent.New(core.AgentDataAcquisition, b, log)
	a := &DataAcquisition{Runtime: rt, log: log.WithAgent(string(core.AgentDataAcquisition))}

	rt.RegisterSubAgent(&fetchRecordSub{store: collab.Records})
	rt.RegisterSubAgent(&extractCategorySub{texts: collab.Texts})
	rt.RegisterSubAgent(&scrapeProductsSub{searcher: collab.Searcher})
	rt.Bind(a)
	return a
}

// ExecuteTask dispatches a phase to its handler.
func (a *DataAcquisition) ExecuteTask(ctx context.Context, task core.Task) (map[string]any, error) {
	switch task.Phase {
	case core.PhaseFetchTitle:
		return a.handleFetchTitle(ctx, task)
	case core.PhaseExtractCategory:
		return a.handleExtractCategory(ctx, task)
	case core.PhaseScrapeProducts:
		return a.handleScrapeProducts(ctx, task)
	case core.PhaseValidateProducts:
		return a.handleValidateProducts(ctx, task)
	default:
		return nil, errUnroutedPhase(a.ID(), task.Phase)
	}
}

func (a *DataAcquisition) handleFetchTitle(ctx context.Context, _ core.Task) (map[string]any, error) {
	return a.Delegate(ctx, subFetchRecord, map[string]any{})
}

func (a *DataAcquisition) handleExtractCategory(ctx context.Context, task core.Task) (map[string]any, error) {
	title, err := task.UpstreamString(core.PhaseFetchTitle, "title")
	if err != nil {
		return nil, err
	}
	return a.Delegate(ctx, subExtractCategory, map[string]any{"title": title})
}

func (a *DataAcquisition) handleScrapeProducts(ctx context.Context, task core.Task) (map[string]any, error) {
	// The test plan skips extract_category, so fall back to the raw
	// title as the search query.
	query, err := task.UpstreamString(core.PhaseExtractCategory, "category")
	if err != nil {
		query, err = task.UpstreamString(core.PhaseFetchTitle, "title")
		if err != nil {
			return nil, err
		}
	}
	return a.Delegate(ctx, subScrapeProducts, map[string]any{
		"query":        query,
		"max_products": maxProducts * 2,
	})
}

// handleValidateProducts filters the scraped set down to products with
// usable fields and keeps the top rated ones. Pure validation, no
// collaborator call.
func (a *DataAcquisition) handleValidateProducts(_ context.Context, task core.Task) (map[string]any, error) {
	products, err := upstreamProducts(task, core.PhaseScrapeProducts)
	if err != nil {
		return nil, err
	}

	valid := make([]core.Product, 0, len(products))
	for _, p := range products {
		if p.Title == "" || p.ProductURL == "" {
			continue
		}
		if p.Price <= 0 || p.Rating <= 0 {
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil, core.ErrValidation(core.CodeNoProducts, "no scraped product passed validation")
	}
	if len(valid) > maxProducts {
		valid = valid[:maxProducts]
	}

	a.log.Info("products validated", "scraped", len(products), "kept", len(valid))
	return map[string]any{
		"products": valid,
		"count":    len(valid),
	}, nil
}

// fetchRecordSub wraps RecordStore.GetPendingRecord.
type fetchRecordSub struct {
	store core.RecordStore
}

func (s *fetchRecordSub) Name() string { return subFetchRecord }

func (s *fetchRecordSub) Execute(ctx context.Context, _ map[string]any) (map[string]any, error) {
	record, err := s.store.GetPendingRecord(ctx)
	if err != nil {
		return nil, core.ErrExternal(core.CodeRecordStore, "fetching pending record").WithCause(err)
	}
	if record == nil {
		return nil, core.ErrValidation(core.CodeRecordStore, "no pending record in queue")
	}
	if record.Title == "" {
		return nil, core.ErrValidation(core.CodeRecordStore,
			fmt.Sprintf("record %s has an empty title", record.ID))
	}
	return map[string]any{
		"record_id": record.ID,
		"title":     record.Title,
		"fields":    record.Fields,
	}, nil
}

// extractCategorySub derives a search category from the raw title via
// the text generation collaborator, falling back to a local heuristic
// when the collaborator declines.
type extractCategorySub struct {
	texts core.TextGenerator
}

func (s *extractCategorySub) Name() string { return subExtractCategory }

func (s *extractCategorySub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	title, err := agent.PayloadString(payload, "title", core.PhaseExtractCategory)
	if err != nil {
		return nil, err
	}

	prompt := "Extract the product category to search for from this video title. " +
		"Answer with the category only: " + title
	res, err := s.texts.GenerateText(ctx, prompt)
	if err != nil || strings.TrimSpace(res.Text) == "" {
		return map[string]any{"category": heuristicCategory(title)}, nil
	}
	return map[string]any{"category": strings.TrimSpace(res.Text)}, nil
}

// heuristicCategory strips the "Top 5" framing words from a title.
func heuristicCategory(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		switch strings.Trim(f, ".,!?:") {
		case "top", "best", "5", "five", "review", "reviews", "of", "the", "in", "for":
			continue
		default:
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return title
	}
	return strings.Join(kept, " ")
}

// scrapeProductsSub wraps the product search collaborator.
type scrapeProductsSub struct {
	searcher core.ProductSearcher
}

func (s *scrapeProductsSub) Name() string { return subScrapeProducts }

func (s *scrapeProductsSub) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	query, err := agent.PayloadString(payload, "query", core.PhaseScrapeProducts)
	if err != nil {
		return nil, err
	}
	maxN, _ := payload["max_products"].(int)
	if maxN <= 0 {
		maxN = maxProducts
	}

	products, err := s.searcher.SearchAndScrape(ctx, query, maxN)
	if err != nil {
		return nil, core.ErrExternal(core.CodeScrapeFailed, "product search failed").WithCause(err)
	}
	return map[string]any{
		"products": products,
		"count":    len(products),
		"query":    query,
	}, nil
}

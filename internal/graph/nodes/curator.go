package nodes

import (
	"context"

	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// curationMinScore drops search hits below this relevance score. Documents
// without a score (site scrape, fallbacks) always pass.
const curationMinScore = 0.2

// Curator promotes raw per-category findings into the curated buckets the
// briefing stage reads.
func Curator() graph.StageFunc {
	return func(ctx context.Context, sc *graph.StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		categories := []struct {
			name   string
			data   map[string]types.Document
			assign func(u *types.StateUpdate, docs map[string]types.Document)
		}{
			{"financial", state.FinancialData, func(u *types.StateUpdate, d map[string]types.Document) { u.CuratedFinancialData = d }},
			{"news", state.NewsData, func(u *types.StateUpdate, d map[string]types.Document) { u.CuratedNewsData = d }},
			{"industry", state.IndustryData, func(u *types.StateUpdate, d map[string]types.Document) { u.CuratedIndustryData = d }},
			{"company", state.CompanyData, func(u *types.StateUpdate, d map[string]types.Document) { u.CuratedCompanyData = d }},
		}

		var update types.StateUpdate
		for _, c := range categories {
			sc.Emit(ctx, types.Event{Type: "curation", Payload: map[string]any{
				"category": c.name,
				"total":    len(c.data),
				"message":  "Curating " + c.name + " documents",
			}})

			if len(c.data) == 0 {
				continue
			}
			kept := make(map[string]types.Document, len(c.data))
			for url, doc := range c.data {
				if doc.Score > 0 && doc.Score < curationMinScore {
					continue
				}
				kept[url] = doc
			}
			if len(kept) > 0 {
				c.assign(&update, kept)
			}
			sc.Log.Debug("Curated category", "category", c.name, "kept", len(kept), "total", len(c.data))
		}

		return update, nil
	}
}

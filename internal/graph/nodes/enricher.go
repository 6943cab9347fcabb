package nodes

import (
	"context"
	"fmt"

	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// Enricher reports the curated documents as ready for briefing. It mutates
// nothing; its value is the per-category progress events.
func Enricher() graph.StageFunc {
	return func(ctx context.Context, sc *graph.StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		categories := []struct {
			name string
			data map[string]types.Document
		}{
			{"company", state.CuratedCompanyData},
			{"industry", state.CuratedIndustryData},
			{"financial", state.CuratedFinancialData},
			{"news", state.CuratedNewsData},
		}

		for _, c := range categories {
			if len(c.data) == 0 {
				continue
			}
			sc.Emit(ctx, types.Event{Type: "enrichment", Payload: map[string]any{
				"category": c.name,
				"enriched": len(c.data),
				"total":    len(c.data),
				"message":  fmt.Sprintf("Enriched %d %s documents", len(c.data), c.name),
			}})
		}

		return types.StateUpdate{}, nil
	}
}

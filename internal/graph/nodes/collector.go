package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// Collector is the fan-in stage: it only inventories what the analysis
// stages produced and records that in the message log.
func Collector() graph.StageFunc {
	return func(ctx context.Context, sc *graph.StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		company := state.Company
		if company == "" {
			company = "Unknown Company"
		}

		categories := []struct {
			label string
			data  map[string]types.Document
		}{
			{"Financial", state.FinancialData},
			{"News", state.NewsData},
			{"Industry", state.IndustryData},
			{"Company", state.CompanyData},
		}

		lines := []string{fmt.Sprintf("Collecting research data for %s:", company)}
		for _, c := range categories {
			if len(c.data) > 0 {
				lines = append(lines, fmt.Sprintf("%s: %d documents collected", c.label, len(c.data)))
			} else {
				lines = append(lines, fmt.Sprintf("%s: no data found", c.label))
			}
		}
		sc.Log.Info("Collected research data", "company", company)

		sc.Emit(ctx, types.Event{Type: "collection_complete", Payload: map[string]any{
			"message": fmt.Sprintf("Collected data for %s", company),
			"step":    "Collection",
		}})

		return types.StateUpdate{Messages: []string{strings.Join(lines, "\n")}}, nil
	}
}

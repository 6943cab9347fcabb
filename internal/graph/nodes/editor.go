package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// NoReportMarker is the terminal output when nothing upstream produced a
// briefing. The job still completes.
const NoReportMarker = "No research data found to generate report."

// ReportFailedMarker replaces the report when compilation itself errors.
// Research already succeeded at that point, so the job still completes.
const ReportFailedMarker = "Error generating report."

// Editor is the terminal stage: it compiles the per-category briefings into
// one structured report, sweeps it for redundancy, and injects the source
// references collected during research.
func Editor(deps Deps) graph.StageFunc {
	return func(ctx context.Context, sc *graph.StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		company := state.Company
		if company == "" {
			company = "Unknown Company"
		}
		industry := state.Industry
		if industry == "" {
			industry = "Unknown"
		}
		hq := state.HQLocation
		if hq == "" {
			hq = "Unknown"
		}

		var briefings []string
		for _, b := range []string{state.CompanyBriefing, state.IndustryBriefing, state.FinancialBriefing, state.NewsBriefing} {
			if b != "" {
				briefings = append(briefings, b)
			}
		}
		if len(briefings) == 0 || deps.LLM == nil {
			sc.Log.Info("No briefings to compile", "company", company)
			return types.StateUpdate{Report: types.StrPtr(NoReportMarker)}, nil
		}

		sc.Emit(ctx, types.Event{Type: "report_compilation", Payload: map[string]any{
			"message": fmt.Sprintf("Compiling final report for %s", company),
			"step":    "Editor",
		}})

		vars := map[string]string{
			"company":          company,
			"industry":         industry,
			"hq_location":      hq,
			"combined_content": strings.Join(briefings, "\n\n"),
		}
		initial, err := deps.LLM.GenerateText(ctx, editorSystemMessage, fill(compileContentPrompt, vars))
		if err != nil {
			sc.Log.Warn("Report compilation failed", "company", company, "error", err)
			return types.StateUpdate{Report: types.StrPtr(ReportFailedMarker)}, nil
		}

		report := map[string]any{}
		swept, err := deps.LLM.GenerateText(ctx, contentSweepSystemMessage, fill(contentSweepPrompt, map[string]string{
			"company":     company,
			"industry":    industry,
			"hq_location": hq,
			"content":     initial,
		}))
		if err == nil {
			err = json.Unmarshal([]byte(stripCodeFences(swept)), &report)
		}
		if err != nil {
			sc.Log.Warn("Report sweep failed, keeping initial compilation", "company", company, "error", err)
			report = map[string]any{"error": "Failed to parse report JSON", "raw": initial}
		}

		refs := collectReferences(state)
		if len(refs) > 0 {
			report["references"] = refs
		}

		raw, mErr := json.Marshal(report)
		if mErr != nil {
			return types.StateUpdate{}, fmt.Errorf("encode report: %w", mErr)
		}
		return types.StateUpdate{
			Report:     types.StrPtr(string(raw)),
			References: refs,
		}, nil
	}
}

func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// collectReferences gathers the distinct source URLs from the curated
// buckets so the report always cites what was actually read.
func collectReferences(state *types.ResearchState) []string {
	seen := map[string]struct{}{}
	for _, bucket := range []map[string]types.Document{
		state.CuratedCompanyData,
		state.CuratedIndustryData,
		state.CuratedFinancialData,
		state.CuratedNewsData,
	} {
		for _, doc := range bucket {
			if doc.URL != "" {
				seen[doc.URL] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	refs := make([]string, 0, len(seen))
	for u := range seen {
		refs = append(refs, u)
	}
	sort.Strings(refs)
	return refs
}

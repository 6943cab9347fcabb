package nodes

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// Briefing synthesizes one briefing per category that has curated documents.
// Categories without data are skipped, and a failed synthesis skips only its
// own category.
func Briefing(deps Deps) graph.StageFunc {
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
		vars := map[string]string{"company": company, "industry": industry, "hq_location": hq}

		categories := []struct {
			name   string
			prompt string
			data   map[string]types.Document
			assign func(u *types.StateUpdate, text string)
		}{
			{"financial", financialBriefingPrompt, state.CuratedFinancialData, func(u *types.StateUpdate, t string) { u.FinancialBriefing = types.StrPtr(t) }},
			{"news", newsBriefingPrompt, state.CuratedNewsData, func(u *types.StateUpdate, t string) { u.NewsBriefing = types.StrPtr(t) }},
			{"industry", industryBriefingPrompt, state.CuratedIndustryData, func(u *types.StateUpdate, t string) { u.IndustryBriefing = types.StrPtr(t) }},
			{"company", companyBriefingPrompt, state.CuratedCompanyData, func(u *types.StateUpdate, t string) { u.CompanyBriefing = types.StrPtr(t) }},
		}

		update := types.StateUpdate{Briefings: map[string]string{}}
		for _, c := range categories {
			if len(c.data) == 0 {
				sc.Log.Debug("No data for briefing", "category", c.name)
				continue
			}

			sc.Emit(ctx, types.Event{Type: "briefing_start", Payload: map[string]any{
				"category":   c.name,
				"total_docs": len(c.data),
				"step":       "Briefing",
			}})

			if deps.LLM == nil {
				continue
			}
			prompt := fill(c.prompt, vars) + "\n\n" + briefingAnalysisInstruction + "\n\n" + formatDocuments(c.data)
			content, err := deps.LLM.GenerateText(ctx, "You are an expert research analyst.", prompt)
			if err != nil {
				sc.Log.Warn("Briefing generation failed", "category", c.name, "error", err)
				continue
			}

			c.assign(&update, content)
			update.Briefings[c.name] = content

			sc.Emit(ctx, types.Event{Type: "briefing_complete", Payload: map[string]any{
				"category":       c.name,
				"content_length": len(content),
				"step":           "Briefing",
			}})
		}

		if len(update.Briefings) == 0 {
			update.Briefings = nil
		}
		return update, nil
	}
}

// formatDocuments renders curated documents for a prompt in stable URL order.
func formatDocuments(docs map[string]types.Document) string {
	urls := make([]string, 0, len(docs))
	for u := range docs {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	type promptDoc struct {
		Title   string `json:"title,omitempty"`
		URL     string `json:"url"`
		Content string `json:"content,omitempty"`
	}
	out := make([]promptDoc, 0, len(urls))
	for _, u := range urls {
		d := docs[u]
		out = append(out, promptDoc{Title: d.Title, URL: d.URL, Content: d.RawContent})
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

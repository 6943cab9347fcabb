package nodes

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/scoutline/scoutline-backend/internal/clients/tavily"
	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/types"
)

const maxAnalystQueries = 3

// analystSpec is what distinguishes one analysis stage from another: its
// category, prompt material and where its findings land in the state.
type analystSpec struct {
	category    string
	step        string
	message     string
	system      string
	queryPrompt string
	fallback    func(company string) []string
	assign      func(u *types.StateUpdate, docs map[string]types.Document)
}

func FinancialAnalyst(deps Deps) graph.StageFunc {
	return analyst(deps, analystSpec{
		category:    "financial",
		step:        "Financial Analysis",
		message:     "Conducting financial analysis...",
		system:      "You are a financial analyst expert.",
		queryPrompt: financialAnalyzerQueryPrompt,
		fallback: func(company string) []string {
			return []string{
				company + " financial performance revenue profit",
				company + " stock analysis",
			}
		},
		assign: func(u *types.StateUpdate, docs map[string]types.Document) { u.FinancialData = docs },
	})
}

func NewsScanner(deps Deps) graph.StageFunc {
	return analyst(deps, analystSpec{
		category:    "news",
		step:        "News Analysis",
		message:     "Scanning news coverage...",
		system:      "You are a news analyst expert.",
		queryPrompt: newsScannerQueryPrompt,
		fallback: func(company string) []string {
			return []string{company + " recent news"}
		},
		assign: func(u *types.StateUpdate, docs map[string]types.Document) { u.NewsData = docs },
	})
}

func IndustryAnalyst(deps Deps) graph.StageFunc {
	return analyst(deps, analystSpec{
		category:    "industry",
		step:        "Industry Analysis",
		message:     "Analyzing industry landscape...",
		system:      "You are an industry analyst expert.",
		queryPrompt: industryAnalyzerQueryPrompt,
		fallback: func(company string) []string {
			return []string{company + " industry market competitors"}
		},
		assign: func(u *types.StateUpdate, docs map[string]types.Document) { u.IndustryData = docs },
	})
}

func CompanyAnalyst(deps Deps) graph.StageFunc {
	return analyst(deps, analystSpec{
		category:    "company",
		step:        "Company Analysis",
		message:     "Researching company fundamentals...",
		system:      "You are a company research expert.",
		queryPrompt: companyAnalyzerQueryPrompt,
		fallback: func(company string) []string {
			return []string{company + " products services leadership"}
		},
		assign: func(u *types.StateUpdate, docs map[string]types.Document) { u.CompanyData = docs },
	})
}

// analyst is the shared body of the four fan-out stages: generate search
// queries with the LLM, run them, and key the hits by URL. Provider failures
// degrade to empty findings rather than failing the job.
func analyst(deps Deps, spec analystSpec) graph.StageFunc {
	return func(ctx context.Context, sc *graph.StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		sc.Emit(ctx, types.Event{Type: "analysis_start", Payload: map[string]any{
			"message": spec.message,
			"step":    spec.step,
		}})

		queries := generateQueries(ctx, sc, deps, spec, state)
		for i, q := range queries {
			sc.Emit(ctx, types.Event{Type: "query_generated", Payload: map[string]any{
				"query":        q,
				"query_number": i + 1,
				"category":     spec.category,
			}})
		}

		docs := map[string]types.Document{}
		if deps.Search != nil {
			for _, q := range queries {
				results, err := deps.Search.Search(ctx, q, tavily.SearchOptions{
					SearchDepth: "advanced",
					MaxResults:  3,
				})
				if err != nil {
					sc.Log.Warn("Search failed", "category", spec.category, "query", q, "error", err)
					continue
				}
				for _, r := range results {
					raw := r.RawContent
					if raw == "" {
						raw = r.Content
					}
					docs[r.URL] = types.Document{
						Title:      r.Title,
						URL:        r.URL,
						Source:     "tavily_search",
						RawContent: raw,
						Score:      r.Score,
					}
				}
			}
		}

		sc.Emit(ctx, types.Event{Type: "analysis_complete", Payload: map[string]any{
			"findings_count": len(docs),
			"step":           spec.step,
		}})

		var update types.StateUpdate
		spec.assign(&update, docs)
		return update, nil
	}
}

func generateQueries(ctx context.Context, sc *graph.StageContext, deps Deps, spec analystSpec, state *types.ResearchState) []string {
	company := state.Company
	industry := state.Industry
	if industry == "" {
		industry = "Unknown"
	}

	if deps.LLM == nil {
		return capQueries(spec.fallback(company))
	}

	prompt := fill(spec.queryPrompt, map[string]string{"company": company, "industry": industry}) +
		fill(queryFormatGuidelines, map[string]string{"company": company})
	content, err := deps.LLM.GenerateText(ctx, spec.system, prompt)
	if err != nil {
		sc.Log.Warn("Query generation failed", "category", spec.category, "error", err)
		return capQueries(spec.fallback(company))
	}

	if qs := parseQueries(content); len(qs) > 0 {
		return capQueries(qs)
	}
	return capQueries(spec.fallback(company))
}

// parseQueries accepts either a JSON object with a "queries" array or plain
// lines, which is how models tend to answer despite the format guidelines.
func parseQueries(content string) []string {
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			var parsed struct {
				Queries []string `json:"queries"`
			}
			if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err == nil && len(parsed.Queries) > 0 {
				return parsed.Queries
			}
		}
	}

	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if len(line) > 5 {
			out = append(out, line)
		}
	}
	return out
}

func capQueries(qs []string) []string {
	if len(qs) > maxAnalystQueries {
		return qs[:maxAnalystQueries]
	}
	return qs
}

package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/scoutline/scoutline-backend/internal/clients/tavily"
	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/types"
)

// Grounding is the entry stage. It validates that the submission carries
// enough to research, suspending with a missing_data interrupt when it does
// not, and otherwise scrapes the company website into the shared state.
func Grounding(deps Deps) graph.StageFunc {
	return func(ctx context.Context, sc *graph.StageContext, state *types.ResearchState) (types.StateUpdate, error) {
		company := state.Company
		if company == "" {
			company = "Unknown Company"
		}

		sc.Emit(ctx, types.Event{Type: "research_init", Payload: map[string]any{
			"company": company,
			"message": fmt.Sprintf("Initiating research for %s", company),
			"step":    "Initializing",
		}})

		var missing []string
		if state.CompanyURL == "" {
			missing = append(missing, "company_url")
		}
		if state.HQLocation == "" {
			missing = append(missing, "hq_location")
		}
		if len(missing) > 0 {
			sc.Log.Info("Suspending research on missing fields", "company", company, "missing", strings.Join(missing, ","))
			return types.StateUpdate{
				Interrupt: &types.Interrupt{
					Kind:    types.InterruptKindMissingData,
					Message: fmt.Sprintf("Please provide missing information for %s", company),
					Data: map[string]any{
						"missing_fields": missing,
						"company":        company,
					},
				},
				SetInterrupt: true,
			}, nil
		}

		url := state.CompanyURL
		msg := []string{fmt.Sprintf("Initiating research for %s", company)}
		msg = append(msg, fmt.Sprintf("Crawling company website: %s", url))

		sc.Emit(ctx, types.Event{Type: "crawl_start", Payload: map[string]any{
			"url":     url,
			"message": fmt.Sprintf("Crawling company website: %s", url),
			"step":    "Website Crawl",
		}})

		siteScrape := map[string]types.Document{}
		if deps.Search != nil {
			query := fmt.Sprintf("site:%s %s", url, company)
			results, err := deps.Search.Search(ctx, query, tavily.SearchOptions{
				IncludeRawContent: true,
				MaxResults:        5,
			})
			if err != nil {
				// Scrape failures never fail the run; research continues
				// without site content.
				sc.Log.Warn("Website crawl failed", "url", url, "error", err)
				msg = append(msg, fmt.Sprintf("Error crawling website content: %v", err))
				sc.Emit(ctx, types.Event{Type: "crawl_error", Payload: map[string]any{
					"error":             err.Error(),
					"message":           fmt.Sprintf("Error crawling website content: %v", err),
					"step":              "Initial Site Scrape",
					"continue_research": true,
				}})
			} else {
				for _, r := range results {
					if r.RawContent == "" {
						continue
					}
					siteScrape[r.URL] = types.Document{
						Title:      r.Title,
						URL:        r.URL,
						Source:     "company_website",
						RawContent: r.RawContent,
					}
				}
				if len(siteScrape) > 0 {
					msg = append(msg, fmt.Sprintf("Crawled %d pages from %s", len(siteScrape), url))
					sc.Emit(ctx, types.Event{Type: "crawl_complete", Payload: map[string]any{
						"pages_count": len(siteScrape),
						"step":        "Website Crawl",
					}})
				} else {
					msg = append(msg, "No content found in website crawl")
				}
			}
		}

		if state.HQLocation != "" {
			msg = append(msg, fmt.Sprintf("Company HQ: %s", state.HQLocation))
		}
		if state.Industry != "" {
			msg = append(msg, fmt.Sprintf("Industry: %s", state.Industry))
		}

		return types.StateUpdate{
			Messages:   []string{strings.Join(msg, "\n")},
			SiteScrape: siteScrape,
			// A previously recorded interrupt is stale once grounding
			// succeeds.
			Interrupt:    nil,
			SetInterrupt: true,
		}, nil
	}
}

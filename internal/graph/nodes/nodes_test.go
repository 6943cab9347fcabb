package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/scoutline/scoutline-backend/internal/clients/tavily"
	"github.com/scoutline/scoutline-backend/internal/graph"
	"github.com/scoutline/scoutline-backend/internal/logger"
	"github.com/scoutline/scoutline-backend/internal/types"
)

type fakeSearch struct {
	results map[string][]tavily.Result
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, query string, opts tavily.SearchOptions) ([]tavily.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[query]; ok {
		return r, nil
	}
	return f.results["*"], nil
}

type fakeLLM struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.calls
	f.calls++
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *eventRecorder) Emit(ctx context.Context, jobID uuid.UUID, ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) typesSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *eventRecorder) find(typ string) *types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].Type == typ {
			return &r.events[i]
		}
	}
	return nil
}

func testStageContext(rec *eventRecorder) *graph.StageContext {
	return graph.NewStageContext(uuid.New(), logger.NewNop(), rec)
}

func TestGroundingInterruptsOnMissingFields(t *testing.T) {
	rec := &eventRecorder{}
	stage := Grounding(Deps{})
	state := &types.ResearchState{Company: "Acme"}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("grounding: %v", err)
	}
	if !update.SetInterrupt || update.Interrupt == nil {
		t.Fatal("expected an interrupt update")
	}
	if update.Interrupt.Kind != types.InterruptKindMissingData {
		t.Fatalf("interrupt kind = %q, want missing_data", update.Interrupt.Kind)
	}
	missing, ok := update.Interrupt.Data["missing_fields"].([]string)
	if !ok || len(missing) != 2 || missing[0] != "company_url" || missing[1] != "hq_location" {
		t.Fatalf("missing_fields = %v", update.Interrupt.Data["missing_fields"])
	}
	if rec.find("research_init") == nil {
		t.Fatal("research_init must be emitted before the interrupt")
	}
}

func TestGroundingScrapesAndClearsInterrupt(t *testing.T) {
	rec := &eventRecorder{}
	search := &fakeSearch{results: map[string][]tavily.Result{
		"*": {
			{Title: "Home", URL: "https://acme.example/home", RawContent: "about acme"},
			{Title: "Empty", URL: "https://acme.example/empty"},
		},
	}}
	stage := Grounding(Deps{Search: search})
	state := &types.ResearchState{
		Company:    "Acme",
		CompanyURL: "https://acme.example",
		HQLocation: "Springfield",
		// Left over from the suspended run; grounding must clear it.
		Interrupt: &types.Interrupt{Kind: types.InterruptKindMissingData},
	}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("grounding: %v", err)
	}
	if !update.SetInterrupt || update.Interrupt != nil {
		t.Fatalf("expected explicit interrupt clear, got SetInterrupt=%v Interrupt=%v", update.SetInterrupt, update.Interrupt)
	}
	if len(update.SiteScrape) != 1 {
		t.Fatalf("site scrape has %d pages, want 1 (pages without raw content dropped)", len(update.SiteScrape))
	}
	doc := update.SiteScrape["https://acme.example/home"]
	if doc.Source != "company_website" || doc.RawContent != "about acme" {
		t.Fatalf("scraped doc = %+v", doc)
	}
	seen := strings.Join(rec.typesSeen(), ",")
	for _, want := range []string{"research_init", "crawl_start", "crawl_complete"} {
		if !strings.Contains(seen, want) {
			t.Fatalf("events %s missing %s", seen, want)
		}
	}
}

func TestGroundingContinuesOnCrawlError(t *testing.T) {
	rec := &eventRecorder{}
	stage := Grounding(Deps{Search: &fakeSearch{err: fmt.Errorf("upstream 500")}})
	state := &types.ResearchState{Company: "Acme", CompanyURL: "https://acme.example", HQLocation: "Springfield"}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("crawl failure must not fail the stage: %v", err)
	}
	if update.Interrupt != nil {
		t.Fatal("crawl failure must not interrupt")
	}
	ev := rec.find("crawl_error")
	if ev == nil {
		t.Fatal("expected crawl_error event")
	}
	if ev.Payload["continue_research"] != true {
		t.Fatalf("crawl_error payload = %v", ev.Payload)
	}
}

func TestAnalystCollectsSearchResults(t *testing.T) {
	rec := &eventRecorder{}
	search := &fakeSearch{results: map[string][]tavily.Result{
		"*": {
			{Title: "10-K", URL: "https://sec.example/10k", Content: "revenue", Score: 0.9},
			{Title: "Funding", URL: "https://press.example/series-b", Content: "raised", Score: 0.8},
		},
	}}
	llm := &fakeLLM{responses: []string{`{"queries": ["Acme revenue", "Acme funding rounds"]}`}}
	stage := FinancialAnalyst(Deps{Search: search, LLM: llm})
	state := &types.ResearchState{Company: "Acme", Industry: "Robotics"}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("financial analyst: %v", err)
	}
	if len(update.FinancialData) != 2 {
		t.Fatalf("financial data has %d docs, want 2", len(update.FinancialData))
	}
	if update.FinancialData["https://sec.example/10k"].Source != "tavily_search" {
		t.Fatalf("doc = %+v", update.FinancialData["https://sec.example/10k"])
	}

	seen := rec.typesSeen()
	if seen[0] != "analysis_start" {
		t.Fatalf("first event = %s, want analysis_start", seen[0])
	}
	done := rec.find("analysis_complete")
	if done == nil || done.Payload["findings_count"] != 2 {
		t.Fatalf("analysis_complete = %+v", done)
	}
	queries := 0
	for _, typ := range seen {
		if typ == "query_generated" {
			queries++
		}
	}
	if queries != 2 {
		t.Fatalf("query_generated emitted %d times, want 2", queries)
	}
}

func TestAnalystDegradesWithoutProviders(t *testing.T) {
	rec := &eventRecorder{}
	stage := NewsScanner(Deps{})
	update, err := stage(context.Background(), testStageContext(rec), &types.ResearchState{Company: "Acme"})
	if err != nil {
		t.Fatalf("news scanner without providers: %v", err)
	}
	if len(update.NewsData) != 0 {
		t.Fatalf("expected empty news data, got %d docs", len(update.NewsData))
	}
	if rec.find("analysis_complete") == nil {
		t.Fatal("analysis_complete must still be emitted")
	}
}

func TestParseQueriesFallsBackToLines(t *testing.T) {
	content := "1. Acme revenue history\n- Acme funding\nshort\nAcme market position analysis"
	qs := parseQueries(content)
	if len(qs) != 3 {
		t.Fatalf("parsed %d queries, want 3: %v", len(qs), qs)
	}
	if qs[0] != "Acme revenue history" {
		t.Fatalf("first query = %q", qs[0])
	}
}

func TestCuratorFiltersLowScores(t *testing.T) {
	rec := &eventRecorder{}
	stage := Curator()
	state := &types.ResearchState{
		Company: "Acme",
		NewsData: map[string]types.Document{
			"https://a.example": {URL: "https://a.example", Score: 0.9},
			"https://b.example": {URL: "https://b.example", Score: 0.05},
			"https://c.example": {URL: "https://c.example"}, // unscored, kept
		},
	}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("curator: %v", err)
	}
	if len(update.CuratedNewsData) != 2 {
		t.Fatalf("curated %d docs, want 2", len(update.CuratedNewsData))
	}
	if _, kept := update.CuratedNewsData["https://b.example"]; kept {
		t.Fatal("low-score doc must be dropped")
	}
	ev := rec.find("curation")
	if ev == nil || ev.Payload["category"] != "news" || ev.Payload["total"] != 3 {
		t.Fatalf("curation event = %+v", ev)
	}
}

func TestEditorMarksEmptyResearch(t *testing.T) {
	rec := &eventRecorder{}
	stage := Editor(Deps{LLM: &fakeLLM{responses: []string{"unused"}}})
	update, err := stage(context.Background(), testStageContext(rec), &types.ResearchState{Company: "Acme"})
	if err != nil {
		t.Fatalf("editor: %v", err)
	}
	if update.Report == nil || *update.Report != NoReportMarker {
		t.Fatalf("report = %v, want the no-report marker", update.Report)
	}
	if rec.find("report_compilation") != nil {
		t.Fatal("no compilation event expected when there is nothing to compile")
	}
}

func TestEditorDegradesOnCompilationFailure(t *testing.T) {
	rec := &eventRecorder{}
	stage := Editor(Deps{LLM: &fakeLLM{err: fmt.Errorf("upstream 500")}})
	state := &types.ResearchState{
		Company:         "Acme",
		CompanyBriefing: "Acme is a robotics company.",
	}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("compilation failure must not fail the run: %v", err)
	}
	if update.Report == nil || *update.Report != ReportFailedMarker {
		t.Fatalf("report = %v, want the failed-report marker", update.Report)
	}
}

func TestEditorCompilesReportWithReferences(t *testing.T) {
	rec := &eventRecorder{}
	llm := &fakeLLM{responses: []string{
		"initial draft",
		"```json\n{\"company_overview\": [{\"heading\": \"H\", \"content\": \"C\"}]}\n```",
	}}
	stage := Editor(Deps{LLM: llm})
	state := &types.ResearchState{
		Company:         "Acme",
		CompanyBriefing: "Acme is a robotics company.",
		CuratedCompanyData: map[string]types.Document{
			"https://acme.example/about": {URL: "https://acme.example/about", Title: "About"},
		},
	}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("editor: %v", err)
	}
	if update.Report == nil {
		t.Fatal("expected a report")
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(*update.Report), &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	refs, ok := report["references"].([]any)
	if !ok || len(refs) != 1 || refs[0] != "https://acme.example/about" {
		t.Fatalf("references = %v", report["references"])
	}
	if rec.find("report_compilation") == nil {
		t.Fatal("expected report_compilation event")
	}
}

func TestBriefingSkipsEmptyCategories(t *testing.T) {
	rec := &eventRecorder{}
	llm := &fakeLLM{responses: []string{"### Funding & Investment\n* Series B"}}
	stage := Briefing(Deps{LLM: llm})
	state := &types.ResearchState{
		Company: "Acme",
		CuratedFinancialData: map[string]types.Document{
			"https://sec.example/10k": {URL: "https://sec.example/10k", RawContent: "revenue"},
		},
	}

	update, err := stage(context.Background(), testStageContext(rec), state)
	if err != nil {
		t.Fatalf("briefing: %v", err)
	}
	if update.FinancialBriefing == nil || *update.FinancialBriefing == "" {
		t.Fatal("expected a financial briefing")
	}
	if update.NewsBriefing != nil || update.CompanyBriefing != nil || update.IndustryBriefing != nil {
		t.Fatal("categories without curated data must stay absent")
	}
	if update.Briefings["financial"] != *update.FinancialBriefing {
		t.Fatal("briefings map must mirror the scalar briefing")
	}
	if llm.calls != 1 {
		t.Fatalf("llm called %d times, want 1", llm.calls)
	}
}

func TestBuildResearchGraphShape(t *testing.T) {
	g := BuildResearchGraph(Deps{})
	if err := g.Validate(); err != nil {
		t.Fatalf("graph invalid: %v", err)
	}
	if g.Entry() != StageGrounding {
		t.Fatalf("entry = %q", g.Entry())
	}
	members := g.FanOutMembers()
	want := []string{StageFinancialAnalyst, StageNewsScanner, StageIndustryAnalyst, StageCompanyAnalyst}
	if len(members) != len(want) {
		t.Fatalf("fan-out members = %v", members)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("fan-out order = %v, want %v", members, want)
		}
	}
}

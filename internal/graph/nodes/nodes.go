package nodes

import (
	"github.com/scoutline/scoutline-backend/internal/clients/openai"
	"github.com/scoutline/scoutline-backend/internal/clients/tavily"
	"github.com/scoutline/scoutline-backend/internal/graph"
)

// Stage names as they appear in job progress and checkpoints.
const (
	StageGrounding        = "grounding"
	StageFinancialAnalyst = "financial_analyst"
	StageNewsScanner      = "news_scanner"
	StageIndustryAnalyst  = "industry_analyst"
	StageCompanyAnalyst   = "company_analyst"
	StageCollector        = "collector"
	StageCurator          = "curator"
	StageEnricher         = "enricher"
	StageBriefing         = "briefing"
	StageEditor           = "editor"
)

// Deps are the external collaborators the stages call. Either client may be
// nil, in which case the stages that need it degrade to empty output instead
// of failing the run.
type Deps struct {
	Search tavily.Client
	LLM    openai.Client
}

// BuildResearchGraph assembles the fixed pipeline shape: grounding with its
// conditional interrupt edge, the four concurrent analysis stages, then the
// sequential tail down to the editor.
func BuildResearchGraph(deps Deps) *graph.Graph {
	g := graph.New()
	g.AddNode(StageGrounding, Grounding(deps))
	g.AddNode(StageFinancialAnalyst, FinancialAnalyst(deps))
	g.AddNode(StageNewsScanner, NewsScanner(deps))
	g.AddNode(StageIndustryAnalyst, IndustryAnalyst(deps))
	g.AddNode(StageCompanyAnalyst, CompanyAnalyst(deps))
	g.AddNode(StageCollector, Collector())
	g.AddNode(StageCurator, Curator())
	g.AddNode(StageEnricher, Enricher())
	g.AddNode(StageBriefing, Briefing(deps))
	g.AddNode(StageEditor, Editor(deps))

	g.SetEntry(StageGrounding)
	g.AddFanOut(StageGrounding, []string{
		StageFinancialAnalyst,
		StageNewsScanner,
		StageIndustryAnalyst,
		StageCompanyAnalyst,
	}, StageCollector)
	g.AddEdge(StageCollector, StageCurator)
	g.AddEdge(StageCurator, StageEnricher)
	g.AddEdge(StageEnricher, StageBriefing)
	g.AddEdge(StageBriefing, StageEditor)
	return g
}

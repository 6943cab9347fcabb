package types

// Document is one retrieved source document, keyed by URL in the per-category
// research data maps.
type Document struct {
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Source     string  `json:"source,omitempty"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// ResearchState is the shared pipeline state accumulated across stage runs.
// Field merge behavior is fixed per field kind:
//   - scalars overwrite only when the update provides a value
//   - maps shallow-merge, update keys win
//   - slices append
//   - Interrupt is reset-on-write so a stage can clear it explicitly
type ResearchState struct {
	Company    string `json:"company"`
	CompanyURL string `json:"company_url,omitempty"`
	HQLocation string `json:"hq_location,omitempty"`
	Industry   string `json:"industry,omitempty"`
	JobID      string `json:"job_id,omitempty"`

	Messages []string `json:"messages,omitempty"`

	SiteScrape    map[string]Document `json:"site_scrape,omitempty"`
	FinancialData map[string]Document `json:"financial_data,omitempty"`
	NewsData      map[string]Document `json:"news_data,omitempty"`
	IndustryData  map[string]Document `json:"industry_data,omitempty"`
	CompanyData   map[string]Document `json:"company_data,omitempty"`

	CuratedFinancialData map[string]Document `json:"curated_financial_data,omitempty"`
	CuratedNewsData      map[string]Document `json:"curated_news_data,omitempty"`
	CuratedIndustryData  map[string]Document `json:"curated_industry_data,omitempty"`
	CuratedCompanyData   map[string]Document `json:"curated_company_data,omitempty"`

	FinancialBriefing string            `json:"financial_briefing,omitempty"`
	NewsBriefing      string            `json:"news_briefing,omitempty"`
	IndustryBriefing  string            `json:"industry_briefing,omitempty"`
	CompanyBriefing   string            `json:"company_briefing,omitempty"`
	Briefings         map[string]string `json:"briefings,omitempty"`
	References        []string          `json:"references,omitempty"`

	Report string `json:"report,omitempty"`

	Interrupt *Interrupt `json:"interrupt,omitempty"`
}

// StateUpdate is a partial state returned by one stage. Scalar fields are
// pointers so "absent" and "empty" stay distinct. SetInterrupt marks the
// reset-on-write field as written, including an explicit clear to nil.
type StateUpdate struct {
	Company    *string
	CompanyURL *string
	HQLocation *string
	Industry   *string

	Messages []string

	SiteScrape    map[string]Document
	FinancialData map[string]Document
	NewsData      map[string]Document
	IndustryData  map[string]Document
	CompanyData   map[string]Document

	CuratedFinancialData map[string]Document
	CuratedNewsData      map[string]Document
	CuratedIndustryData  map[string]Document
	CuratedCompanyData   map[string]Document

	FinancialBriefing *string
	NewsBriefing      *string
	IndustryBriefing  *string
	CompanyBriefing   *string
	Briefings         map[string]string
	References        []string

	Report *string

	Interrupt    *Interrupt
	SetInterrupt bool
}

// Apply merges a stage's partial update into the state. Applying the same
// updates in the same order always yields the same state, which is what makes
// the fan-in merge deterministic.
func (s *ResearchState) Apply(u StateUpdate) {
	applyScalar(&s.Company, u.Company)
	applyScalar(&s.CompanyURL, u.CompanyURL)
	applyScalar(&s.HQLocation, u.HQLocation)
	applyScalar(&s.Industry, u.Industry)
	applyScalar(&s.FinancialBriefing, u.FinancialBriefing)
	applyScalar(&s.NewsBriefing, u.NewsBriefing)
	applyScalar(&s.IndustryBriefing, u.IndustryBriefing)
	applyScalar(&s.CompanyBriefing, u.CompanyBriefing)
	applyScalar(&s.Report, u.Report)

	s.Messages = append(s.Messages, u.Messages...)
	s.References = append(s.References, u.References...)

	s.SiteScrape = mergeDocs(s.SiteScrape, u.SiteScrape)
	s.FinancialData = mergeDocs(s.FinancialData, u.FinancialData)
	s.NewsData = mergeDocs(s.NewsData, u.NewsData)
	s.IndustryData = mergeDocs(s.IndustryData, u.IndustryData)
	s.CompanyData = mergeDocs(s.CompanyData, u.CompanyData)
	s.CuratedFinancialData = mergeDocs(s.CuratedFinancialData, u.CuratedFinancialData)
	s.CuratedNewsData = mergeDocs(s.CuratedNewsData, u.CuratedNewsData)
	s.CuratedIndustryData = mergeDocs(s.CuratedIndustryData, u.CuratedIndustryData)
	s.CuratedCompanyData = mergeDocs(s.CuratedCompanyData, u.CuratedCompanyData)

	if u.Briefings != nil {
		if s.Briefings == nil {
			s.Briefings = make(map[string]string, len(u.Briefings))
		}
		for k, v := range u.Briefings {
			s.Briefings[k] = v
		}
	}

	if u.SetInterrupt {
		s.Interrupt = u.Interrupt
	}
}

// Clone deep-copies the state so fan-out stages can each read a private
// snapshot while the group runs.
func (s *ResearchState) Clone() *ResearchState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append([]string(nil), s.Messages...)
	cp.References = append([]string(nil), s.References...)
	cp.SiteScrape = cloneDocs(s.SiteScrape)
	cp.FinancialData = cloneDocs(s.FinancialData)
	cp.NewsData = cloneDocs(s.NewsData)
	cp.IndustryData = cloneDocs(s.IndustryData)
	cp.CompanyData = cloneDocs(s.CompanyData)
	cp.CuratedFinancialData = cloneDocs(s.CuratedFinancialData)
	cp.CuratedNewsData = cloneDocs(s.CuratedNewsData)
	cp.CuratedIndustryData = cloneDocs(s.CuratedIndustryData)
	cp.CuratedCompanyData = cloneDocs(s.CuratedCompanyData)
	if s.Briefings != nil {
		cp.Briefings = make(map[string]string, len(s.Briefings))
		for k, v := range s.Briefings {
			cp.Briefings[k] = v
		}
	}
	if s.Interrupt != nil {
		iv := *s.Interrupt
		cp.Interrupt = &iv
	}
	return &cp
}

func applyScalar(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func mergeDocs(old, update map[string]Document) map[string]Document {
	if update == nil {
		return old
	}
	if old == nil {
		old = make(map[string]Document, len(update))
	}
	for k, v := range update {
		old[k] = v
	}
	return old
}

func cloneDocs(m map[string]Document) map[string]Document {
	if m == nil {
		return nil
	}
	cp := make(map[string]Document, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// StrPtr is a small helper for building scalar updates.
func StrPtr(s string) *string { return &s }

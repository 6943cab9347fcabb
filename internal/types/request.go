package types

import (
	"fmt"
	"strings"

	"github.com/scoutline/scoutline-backend/internal/pkg/errors"
)

// ResearchRequest is the originating submission payload.
type ResearchRequest struct {
	Company    string `json:"company"`
	CompanyURL string `json:"company_url,omitempty"`
	Industry   string `json:"industry,omitempty"`
	HQLocation string `json:"hq_location,omitempty"`
}

func (r ResearchRequest) Validate() error {
	if strings.TrimSpace(r.Company) == "" {
		return fmt.Errorf("%w: company is required", errors.ErrValidation)
	}
	return nil
}

// InitialState builds the state a fresh run starts from.
func (r ResearchRequest) InitialState(jobID string) *ResearchState {
	return &ResearchState{
		Company:    strings.TrimSpace(r.Company),
		CompanyURL: strings.TrimSpace(r.CompanyURL),
		Industry:   strings.TrimSpace(r.Industry),
		HQLocation: strings.TrimSpace(r.HQLocation),
		JobID:      jobID,
	}
}

// ApprovalData carries the fields a human may supply on resume. Caller values
// win only when provided.
type ApprovalData struct {
	CompanyURL string `json:"company_url,omitempty"`
	HQLocation string `json:"hq_location,omitempty"`
	Industry   string `json:"industry,omitempty"`
}

// ApprovalRequest is the approve/reject payload for a suspended job.
type ApprovalRequest struct {
	Approved bool         `json:"approved"`
	Data     ApprovalData `json:"data"`
}

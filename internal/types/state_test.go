package types

import (
	"encoding/json"
	"testing"
)

func TestApply_ScalarOverwriteKeepsOldWhenAbsent(t *testing.T) {
	s := &ResearchState{Company: "Acme", CompanyURL: "https://acme.example"}
	s.Apply(StateUpdate{Company: StrPtr("Acme Corp")})

	if s.Company != "Acme Corp" {
		t.Fatalf("expected overwrite, got %q", s.Company)
	}
	if s.CompanyURL != "https://acme.example" {
		t.Fatalf("expected untouched url, got %q", s.CompanyURL)
	}
}

func TestApply_MapMergeNewKeysWin(t *testing.T) {
	s := &ResearchState{
		FinancialData: map[string]Document{
			"https://a": {Title: "old"},
			"https://b": {Title: "keep"},
		},
	}
	s.Apply(StateUpdate{FinancialData: map[string]Document{
		"https://a": {Title: "new"},
		"https://c": {Title: "added"},
	}})

	if got := s.FinancialData["https://a"].Title; got != "new" {
		t.Fatalf("expected conflict to resolve to update value, got %q", got)
	}
	if got := s.FinancialData["https://b"].Title; got != "keep" {
		t.Fatalf("expected existing key preserved, got %q", got)
	}
	if len(s.FinancialData) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(s.FinancialData))
	}
}

func TestApply_AppendOnlyFieldsConcatenate(t *testing.T) {
	s := &ResearchState{Messages: []string{"first"}, References: []string{"https://a"}}
	s.Apply(StateUpdate{Messages: []string{"second"}, References: []string{"https://b"}})

	if len(s.Messages) != 2 || s.Messages[1] != "second" {
		t.Fatalf("unexpected messages: %v", s.Messages)
	}
	if len(s.References) != 2 || s.References[0] != "https://a" {
		t.Fatalf("unexpected references: %v", s.References)
	}
}

func TestApply_InterruptResetOnWrite(t *testing.T) {
	s := &ResearchState{}
	s.Apply(StateUpdate{
		Interrupt:    &Interrupt{Kind: InterruptKindMissingData, Message: "missing"},
		SetInterrupt: true,
	})
	if s.Interrupt == nil || s.Interrupt.Kind != InterruptKindMissingData {
		t.Fatalf("expected interrupt set, got %+v", s.Interrupt)
	}

	// An update that does not touch the field leaves it alone.
	s.Apply(StateUpdate{Company: StrPtr("Acme")})
	if s.Interrupt == nil {
		t.Fatalf("interrupt cleared by unrelated update")
	}

	// An explicit clear must win even though the new value is absent.
	s.Apply(StateUpdate{Interrupt: nil, SetInterrupt: true})
	if s.Interrupt != nil {
		t.Fatalf("expected interrupt cleared, got %+v", s.Interrupt)
	}
}

func TestApply_SameUpdatesSameOrderIsDeterministic(t *testing.T) {
	updates := []StateUpdate{
		{FinancialData: map[string]Document{"https://x": {Title: "f1"}}, References: []string{"https://x"}},
		{NewsData: map[string]Document{"https://y": {Title: "n1"}}, References: []string{"https://y"}},
		{FinancialData: map[string]Document{"https://x": {Title: "f2"}}},
		{IndustryData: map[string]Document{"https://z": {Title: "i1"}}, Messages: []string{"done"}},
	}

	run := func() []byte {
		s := &ResearchState{Company: "Acme"}
		for _, u := range updates {
			s.Apply(u)
		}
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}

	first := run()
	second := run()
	if string(first) != string(second) {
		t.Fatalf("merge not deterministic:\n%s\n%s", first, second)
	}
}

func TestClone_IsolatesFanOutSnapshots(t *testing.T) {
	s := &ResearchState{
		Company:       "Acme",
		FinancialData: map[string]Document{"https://a": {Title: "doc"}},
		Messages:      []string{"one"},
	}
	cp := s.Clone()
	cp.Apply(StateUpdate{
		FinancialData: map[string]Document{"https://b": {Title: "other"}},
		Messages:      []string{"two"},
	})

	if len(s.FinancialData) != 1 {
		t.Fatalf("clone mutation leaked into original map")
	}
	if len(s.Messages) != 1 {
		t.Fatalf("clone mutation leaked into original slice")
	}
}

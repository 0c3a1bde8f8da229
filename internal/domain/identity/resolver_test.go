package identity

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type recordingFinder struct {
	patients []*Patient
	err      error
	calls    []Lookup
}

func (f *recordingFinder) FindActive(_ context.Context, l Lookup) (*Patient, error) {
	f.calls = append(f.calls, l)
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.patients {
		if matchesLookup(p, l) {
			return p, nil
		}
	}
	return nil, nil
}

func matchesLookup(p *Patient, l Lookup) bool {
	if !p.IsActive {
		return false
	}
	switch l.Kind {
	case LookupPatientID:
		return p.PatientID == l.PatientID
	case LookupContactAndName:
		return ContactSuffix(p.ContactNumber) == l.ContactSuffix && NormalizeName(p.FullName) == l.NameKey
	case LookupContact:
		return ContactSuffix(p.ContactNumber) == l.ContactSuffix
	case LookupName:
		return NormalizeName(p.FullName) == l.NameKey
	}
	return false
}

func ashaRao() *Patient {
	return &Patient{
		PatientID:     "PAT-250101-001",
		FullName:      "Asha Rao",
		ContactNumber: "+919876543210",
		DateOfBirth:   "01-02-1990",
		IsActive:      true,
	}
}

func TestQueryLookup_Priority(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want LookupKind
	}{
		{"id wins over everything", Query{PatientID: "PAT-1", ContactNumber: "9876543210", FullName: "Asha"}, LookupPatientID},
		{"contact and name", Query{ContactNumber: "9876543210", FullName: "Asha"}, LookupContactAndName},
		{"contact only", Query{ContactNumber: "9876543210"}, LookupContact},
		{"name only", Query{FullName: "Asha"}, LookupName},
		{"blank id ignored", Query{PatientID: "  ", FullName: "Asha"}, LookupName},
		{"short contact with name", Query{ContactNumber: "98765", FullName: "Asha"}, LookupNone},
		{"short contact alone", Query{ContactNumber: "12345"}, LookupNone},
		{"blank contact ignored", Query{ContactNumber: "  ", FullName: "Asha"}, LookupName},
		{"nothing", Query{}, LookupNone},
		{"whitespace only", Query{FullName: "   "}, LookupNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Lookup().Kind; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestResolve_CountryCodeAndCase(t *testing.T) {
	f := &recordingFinder{patients: []*Patient{ashaRao()}}
	r := NewResolver(f, false, zerolog.Nop())

	p, err := r.Resolve(context.Background(), Query{ContactNumber: "9876543210", FullName: "  ASHA rao "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.PatientID != "PAT-250101-001" {
		t.Fatalf("expected match, got %+v", p)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected exactly one store call, got %d", len(f.calls))
	}
}

func TestResolve_EmptyCriteria(t *testing.T) {
	var buf bytes.Buffer
	f := &recordingFinder{patients: []*Patient{ashaRao()}}
	r := NewResolver(f, false, zerolog.New(&buf))

	p, err := r.Resolve(context.Background(), Query{})
	if err != nil || p != nil {
		t.Fatalf("expected no match and no error, got %v %v", p, err)
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no store call, got %d", len(f.calls))
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected a warning to be logged, got %s", buf.String())
	}
}

func TestResolve_ShortContactWithNameIssuesNoQuery(t *testing.T) {
	f := &recordingFinder{patients: []*Patient{ashaRao()}}
	r := NewResolver(f, false, zerolog.Nop())

	p, err := r.Resolve(context.Background(), Query{ContactNumber: "12345", FullName: "Asha Rao"})
	if err != nil || p != nil {
		t.Fatalf("expected no match and no error, got %v %v", p, err)
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no store call, got %v", f.calls)
	}
}

func TestResolve_InactiveNeverMatches(t *testing.T) {
	inactive := ashaRao()
	inactive.IsActive = false
	f := &recordingFinder{patients: []*Patient{inactive}}
	r := NewResolver(f, false, zerolog.Nop())

	queries := []Query{
		{PatientID: inactive.PatientID},
		{ContactNumber: inactive.ContactNumber, FullName: inactive.FullName},
		{ContactNumber: inactive.ContactNumber},
		{FullName: inactive.FullName},
	}
	for _, q := range queries {
		if p, _ := r.Resolve(context.Background(), q); p != nil {
			t.Errorf("expected inactive patient to be excluded for %+v", q)
		}
	}
}

func TestResolve_StorageErrorFailOpen(t *testing.T) {
	var buf bytes.Buffer
	f := &recordingFinder{err: errors.New("connection refused")}
	r := NewResolver(f, false, zerolog.New(&buf))

	p, err := r.Resolve(context.Background(), Query{FullName: "Asha Rao"})
	if err != nil || p != nil {
		t.Fatalf("expected fail-open no match, got %v %v", p, err)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected the storage fault to be logged, got %s", buf.String())
	}
}

func TestResolve_StorageErrorFailClosed(t *testing.T) {
	f := &recordingFinder{err: errors.New("connection refused")}
	r := NewResolver(f, true, zerolog.Nop())

	if _, err := r.Resolve(context.Background(), Query{FullName: "Asha Rao"}); !errors.Is(err, ErrResolverUnavailable) {
		t.Fatalf("expected ErrResolverUnavailable, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	found := ashaRao()
	if got := Classify(found, "asha rao", "01-02-1990"); got != MatchExact {
		t.Errorf("expected exact_match, got %s", got)
	}
	if got := Classify(found, "Ravi Rao", "05-06-1985"); got != MatchFamilyMember {
		t.Errorf("expected family_member, got %s", got)
	}
	if got := Classify(found, "Asha Rao", "02-02-1990"); got != MatchFamilyMember {
		t.Errorf("expected family_member for differing DOB, got %s", got)
	}
	if got := Classify(nil, "Asha Rao", "01-02-1990"); got != MatchNone {
		t.Errorf("expected none, got %s", got)
	}
}

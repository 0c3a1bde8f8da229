package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Query is a partial identity. Resolution uses the first usable combination:
// patient id, then contact number with full name, then contact number, then
// full name.
type Query struct {
	PatientID     string `json:"patientId"`
	ContactNumber string `json:"contactNumber"`
	FullName      string `json:"fullName"`
}

// LookupKind names the branch a Query resolved to.
type LookupKind int

const (
	LookupNone LookupKind = iota
	LookupPatientID
	LookupContactAndName
	LookupContact
	LookupName
)

func (k LookupKind) String() string {
	switch k {
	case LookupPatientID:
		return "patient_id"
	case LookupContactAndName:
		return "contact_and_name"
	case LookupContact:
		return "contact"
	case LookupName:
		return "name"
	}
	return "none"
}

// Lookup is a normalized, store-ready form of a Query. Only the fields used
// by Kind are set.
type Lookup struct {
	Kind          LookupKind
	PatientID     string
	ContactSuffix string
	NameKey       string
}

// Lookup normalizes q and chooses its branch from the fields supplied. A
// supplied contact number with fewer than ten digits selects no branch at
// all: it never downgrades to a name-only lookup.
func (q Query) Lookup() Lookup {
	if id := strings.TrimSpace(q.PatientID); id != "" {
		return Lookup{Kind: LookupPatientID, PatientID: id}
	}
	hasContact := strings.TrimSpace(q.ContactNumber) != ""
	suffix := ContactSuffix(q.ContactNumber)
	name := NormalizeName(q.FullName)
	switch {
	case hasContact && suffix == "":
		return Lookup{Kind: LookupNone}
	case suffix != "" && name != "":
		return Lookup{Kind: LookupContactAndName, ContactSuffix: suffix, NameKey: name}
	case suffix != "":
		return Lookup{Kind: LookupContact, ContactSuffix: suffix}
	case name != "":
		return Lookup{Kind: LookupName, NameKey: name}
	}
	return Lookup{Kind: LookupNone}
}

// PatientFinder returns the first active patient matching a lookup, or nil.
// Which record is first among several matches is the store's natural order.
type PatientFinder interface {
	FindActive(ctx context.Context, l Lookup) (*Patient, error)
}

// Resolver decides whether a partial identity belongs to an existing active
// patient. It is read-only and issues at most one store query per call.
type Resolver struct {
	finder     PatientFinder
	failClosed bool
	logger     zerolog.Logger
}

// NewResolver builds a Resolver. With failClosed false a storage fault is
// logged and reported as no match; with failClosed true it is returned as
// ErrResolverUnavailable.
func NewResolver(finder PatientFinder, failClosed bool, logger zerolog.Logger) *Resolver {
	return &Resolver{finder: finder, failClosed: failClosed, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, q Query) (*Patient, error) {
	l := q.Lookup()
	if l.Kind == LookupNone {
		r.logger.Warn().Msg("patient lookup without usable search criteria")
		return nil, nil
	}

	p, err := r.finder.FindActive(ctx, l)
	if err != nil {
		r.logger.Error().Err(err).Str("lookup", l.Kind.String()).Msg("patient lookup failed")
		if r.failClosed {
			return nil, fmt.Errorf("%w: %v", ErrResolverUnavailable, err)
		}
		return nil, nil
	}
	if p != nil {
		r.logger.Info().Str("patient_id", p.PatientID).Str("lookup", l.Kind.String()).Msg("existing patient found")
	}
	return p, nil
}

// MatchKind classifies an existing record against a new registration.
type MatchKind string

const (
	MatchNone         MatchKind = "none"
	MatchExact        MatchKind = "exact_match"
	MatchFamilyMember MatchKind = "family_member"
)

// Classify compares a record found by contact and name against the incoming
// name and date of birth. Same name (ignoring case) and same date of birth
// is the same person; anything else is someone sharing the contact number.
func Classify(found *Patient, fullName, dateOfBirth string) MatchKind {
	if found == nil {
		return MatchNone
	}
	if NormalizeName(found.FullName) == NormalizeName(fullName) &&
		strings.TrimSpace(found.DateOfBirth) == strings.TrimSpace(dateOfBirth) {
		return MatchExact
	}
	return MatchFamilyMember
}

package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type mockPatientRepo struct {
	patients  []*Patient
	findErr   error
	createErr []error
	listErr   error
	findCalls int
}

func newMockPatientRepo(seed ...*Patient) *mockPatientRepo {
	return &mockPatientRepo{patients: seed}
}

func (m *mockPatientRepo) FindActive(_ context.Context, l Lookup) (*Patient, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, p := range m.patients {
		if matchesLookup(p, l) {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range m.patients {
		if existing.PatientID == p.PatientID {
			return ErrPatientIDConflict
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients = append(m.patients, &cp)
	return nil
}

func (m *mockPatientRepo) GetByPatientID(_ context.Context, patientID string) (*Patient, error) {
	for _, p := range m.patients {
		if p.PatientID == patientID && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	for i, existing := range m.patients {
		if existing.PatientID == p.PatientID && existing.IsActive {
			cp := *p
			m.patients[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockPatientRepo) Deactivate(_ context.Context, patientID string, at time.Time) error {
	for _, p := range m.patients {
		if p.PatientID == patientID && p.IsActive {
			p.IsActive = false
			p.DeactivatedAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockPatientRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []*Patient
	for _, p := range m.patients {
		if !p.IsActive {
			continue
		}
		if f.Location != "" && p.RegisteredLocation != f.Location {
			continue
		}
		if f.Search != "" && !strings.HasPrefix(NormalizeName(p.FullName), NormalizeName(f.Search)) {
			continue
		}
		out = append(out, p)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockPatientRepo) CountActive(context.Context) (int, error) {
	n := 0
	for _, p := range m.patients {
		if p.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *mockPatientRepo) CountRegistered(_ context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, p := range m.patients {
		if !p.RegistrationDate.Before(from) && !p.RegistrationDate.After(to) {
			n++
		}
	}
	return n, nil
}

type mockAppointmentCounter map[string]int

func (m mockAppointmentCounter) CountByPatient(_ context.Context, patientID string) (int, error) {
	return m[patientID], nil
}

type failingAppointmentCounter struct{ err error }

func (f failingAppointmentCounter) CountByPatient(context.Context, string) (int, error) {
	return 0, f.err
}

func newTestService(repo *mockPatientRepo, failClosed bool) *Service {
	svc := NewService(repo, newMemCounter(), mockAppointmentCounter{"PAT-250101-001": 2}, failClosed, zerolog.Nop())
	clock := fixedClock(time.Date(2025, 6, 15, 10, 0, 0, 0, time.Local))
	svc.now = clock
	svc.ids.now = clock
	return svc
}

func validRegistration() RegistrationRequest {
	return RegistrationRequest{
		FullName:      "Asha Rao",
		ContactNumber: "9876543210",
		DateOfBirth:   "01-02-1990",
		Gender:        "Female",
		Locality:      "Indiranagar",
	}
}

// -- Tests --

func TestRegister_New(t *testing.T) {
	repo := newMockPatientRepo()
	svc := newTestService(repo, false)

	res, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := res.Patient
	if p.PatientID != "PAT-250615-001" {
		t.Errorf("expected PAT-250615-001, got %s", p.PatientID)
	}
	if p.ContactNumber != "+919876543210" {
		t.Errorf("expected sanitized contact, got %s", p.ContactNumber)
	}
	if p.Age != 35 {
		t.Errorf("expected age 35, got %d", p.Age)
	}
	if p.CreatedBy != "system" {
		t.Errorf("expected created_by default, got %s", p.CreatedBy)
	}
	if !p.IsActive {
		t.Error("expected patient to be active")
	}
	if res.FamilyMemberMatch {
		t.Error("expected no family member match")
	}
}

func TestRegister_ExactDuplicateRejected(t *testing.T) {
	repo := newMockPatientRepo(ashaRao())
	svc := newTestService(repo, false)

	req := validRegistration()
	req.ContactNumber = "+91 98765 43210"
	_, err := svc.Register(context.Background(), req)

	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.PatientID != "PAT-250101-001" {
		t.Errorf("expected existing id, got %s", dup.PatientID)
	}
	if !errors.Is(err, ErrDuplicatePatient) {
		t.Error("expected errors.Is(err, ErrDuplicatePatient)")
	}
	if len(repo.patients) != 1 {
		t.Errorf("expected no new patient, got %d", len(repo.patients))
	}
}

func TestRegister_FamilyMemberAllowed(t *testing.T) {
	repo := newMockPatientRepo(ashaRao())
	svc := newTestService(repo, false)

	// Same contact, different name and DOB. The contact+name lookup misses,
	// so this registers as an unrelated new patient.
	req := validRegistration()
	req.FullName = "Ravi Rao"
	req.DateOfBirth = "05-06-1985"
	req.Gender = "Male"
	res, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patient.PatientID == "PAT-250101-001" {
		t.Error("expected a newly generated identifier")
	}
	if len(repo.patients) != 2 {
		t.Errorf("expected 2 patients, got %d", len(repo.patients))
	}
}

func TestRegister_SameNameDifferentDOBIsFamilyMember(t *testing.T) {
	repo := newMockPatientRepo(ashaRao())
	svc := newTestService(repo, false)

	req := validRegistration()
	req.DateOfBirth = "12-12-2015"
	res, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.FamilyMemberMatch {
		t.Error("expected family member match")
	}
	if res.MatchedPatientID != "PAT-250101-001" {
		t.Errorf("expected matched id, got %s", res.MatchedPatientID)
	}
}

func TestRegister_OneLookupPerRegistration(t *testing.T) {
	repo := newMockPatientRepo()
	svc := newTestService(repo, false)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.findCalls != 1 {
		t.Errorf("expected 1 lookup, got %d", repo.findCalls)
	}
}

func TestRegister_StorageFaultFailOpen(t *testing.T) {
	repo := newMockPatientRepo(ashaRao())
	repo.findErr = errors.New("timeout")
	svc := newTestService(repo, false)

	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("expected registration to proceed under fail-open, got %v", err)
	}
}

func TestRegister_StorageFaultFailClosed(t *testing.T) {
	repo := newMockPatientRepo()
	repo.findErr = errors.New("timeout")
	svc := newTestService(repo, true)

	if _, err := svc.Register(context.Background(), validRegistration()); !errors.Is(err, ErrResolverUnavailable) {
		t.Fatalf("expected ErrResolverUnavailable, got %v", err)
	}
	if len(repo.patients) != 0 {
		t.Error("expected nothing to be stored")
	}
}

func TestRegister_IDConflictRetried(t *testing.T) {
	repo := newMockPatientRepo()
	repo.createErr = []error{ErrPatientIDConflict}
	svc := newTestService(repo, false)

	res, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patient.PatientID != "PAT-250615-002" {
		t.Errorf("expected retry to draw the next id, got %s", res.Patient.PatientID)
	}
}

func TestRegister_FallbackIDConflictDisambiguated(t *testing.T) {
	repo := newMockPatientRepo(&Patient{PatientID: "PAT-250615-T100000", FullName: "Someone Else", IsActive: true})
	svc := newTestService(repo, false)
	svc.ids.counters.(*memCounter).err = errors.New("counter unavailable")

	res, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patient.PatientID != "PAT-250615-T100000-2" {
		t.Errorf("expected suffixed fallback id, got %s", res.Patient.PatientID)
	}
}

func TestRegister_FallbackIDConflictsExhausted(t *testing.T) {
	repo := newMockPatientRepo(
		&Patient{PatientID: "PAT-250615-T100000", FullName: "A", IsActive: true},
		&Patient{PatientID: "PAT-250615-T100000-2", FullName: "B", IsActive: true},
		&Patient{PatientID: "PAT-250615-T100000-3", FullName: "C", IsActive: true},
	)
	svc := newTestService(repo, false)
	svc.ids.counters.(*memCounter).err = errors.New("counter unavailable")

	_, err := svc.Register(context.Background(), validRegistration())
	if !errors.Is(err, ErrPatientIDConflict) {
		t.Fatalf("expected ErrPatientIDConflict after %d attempts, got %v", maxIDAttempts, err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newMockPatientRepo(), false)
	tests := []struct {
		name   string
		mutate func(*RegistrationRequest)
		want   string
	}{
		{"missing name", func(r *RegistrationRequest) { r.FullName = "" }, "fullName is required"},
		{"short contact", func(r *RegistrationRequest) { r.ContactNumber = "12345" }, "at least 10 digits"},
		{"bad dob format", func(r *RegistrationRequest) { r.DateOfBirth = "1990-02-01" }, "DD-MM-YYYY"},
		{"future dob", func(r *RegistrationRequest) { r.DateOfBirth = "01-01-2030" }, "future"},
		{"too old", func(r *RegistrationRequest) { r.DateOfBirth = "01-01-1850" }, "150"},
		{"bad gender", func(r *RegistrationRequest) { r.Gender = "X" }, "Gender must be"},
		{"short locality", func(r *RegistrationRequest) { r.Locality = "abc" }, "Locality"},
		{"long contact", func(r *RegistrationRequest) { r.ContactNumber = "+91 98765 43210 98765" }, "at most 15 digits"},
		{"long emergency contact", func(r *RegistrationRequest) { r.EmergencyContactNumber = strings.Repeat("9", 16) }, "Emergency contact number must be at most"},
		{"long name", func(r *RegistrationRequest) { r.FullName = strings.Repeat("a", 256) }, "fullName must be at most 255"},
		{"long locality", func(r *RegistrationRequest) { r.Locality = strings.Repeat("x", 256) }, "Locality must be at most 255"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegistration()
			tt.mutate(&req)
			_, err := svc.Register(context.Background(), req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(verr.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, verr.Error())
			}
		})
	}
}

func TestRegister_ValidationCollectsAllProblems(t *testing.T) {
	svc := newTestService(newMockPatientRepo(), false)
	_, err := svc.Register(context.Background(), RegistrationRequest{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 5 {
		t.Errorf("expected 5 problems, got %v", verr.Problems)
	}
}

func TestRegister_EmergencyContactSanitized(t *testing.T) {
	svc := newTestService(newMockPatientRepo(), false)
	req := validRegistration()
	req.EmergencyContactNumber = "98450 12345"
	res, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patient.EmergencyNumber == nil || *res.Patient.EmergencyNumber != "+919845012345" {
		t.Errorf("expected sanitized emergency contact, got %v", res.Patient.EmergencyNumber)
	}
}

func TestCalculateAge(t *testing.T) {
	dob := time.Date(1990, 6, 16, 0, 0, 0, 0, time.UTC)
	if got := CalculateAge(dob, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)); got != 34 {
		t.Errorf("expected 34 the day before birthday, got %d", got)
	}
	if got := CalculateAge(dob, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)); got != 35 {
		t.Errorf("expected 35 on birthday, got %d", got)
	}
}

func TestGet_WithAppointmentCount(t *testing.T) {
	svc := newTestService(newMockPatientRepo(ashaRao()), false)
	d, err := svc.Get(context.Background(), "PAT-250101-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.AppointmentCount != 2 {
		t.Errorf("expected 2 appointments, got %d", d.AppointmentCount)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(newMockPatientRepo(), false)
	if _, err := svc.Get(context.Background(), "PAT-000000-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_MergesFields(t *testing.T) {
	repo := newMockPatientRepo(ashaRao())
	svc := newTestService(repo, false)

	dob := "15-06-2000"
	contact := "09845012345"
	p, err := svc.Update(context.Background(), "PAT-250101-001", PatientUpdate{DateOfBirth: &dob, ContactNumber: &contact})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Age != 25 {
		t.Errorf("expected recomputed age 25, got %d", p.Age)
	}
	if p.ContactNumber != "+919845012345" {
		t.Errorf("expected re-sanitized contact, got %s", p.ContactNumber)
	}
	if p.FullName != "Asha Rao" {
		t.Errorf("expected untouched name, got %s", p.FullName)
	}
	if p.PatientID != "PAT-250101-001" {
		t.Errorf("expected id unchanged, got %s", p.PatientID)
	}
}

func TestUpdate_Empty(t *testing.T) {
	svc := newTestService(newMockPatientRepo(ashaRao()), false)
	var verr *ValidationError
	if _, err := svc.Update(context.Background(), "PAT-250101-001", PatientUpdate{}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestUpdate_InvalidGender(t *testing.T) {
	svc := newTestService(newMockPatientRepo(ashaRao()), false)
	g := "robot"
	var verr *ValidationError
	if _, err := svc.Update(context.Background(), "PAT-250101-001", PatientUpdate{Gender: &g}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestUpdate_RejectsOversizedFields(t *testing.T) {
	long := strings.Repeat("a", 256)
	contact := strings.Repeat("9", 16)
	tests := []struct {
		name string
		u    PatientUpdate
		want string
	}{
		{"name", PatientUpdate{FullName: &long}, "full_name must be at most 255"},
		{"contact", PatientUpdate{ContactNumber: &contact}, "Contact number must be at most 15"},
		{"emergency contact", PatientUpdate{EmergencyContactNumber: &contact}, "Emergency contact number must be at most 15"},
		{"location", PatientUpdate{RegisteredLocation: &long}, "Locality must be at most 255"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockPatientRepo(ashaRao()), false)
			_, err := svc.Update(context.Background(), "PAT-250101-001", tt.u)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(verr.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, verr.Error())
			}
		})
	}
}

func TestRegister_MaxLengthFieldsAccepted(t *testing.T) {
	svc := newTestService(newMockPatientRepo(), false)
	req := validRegistration()
	req.FullName = strings.Repeat("a", 255)
	req.ContactNumber = "+" + strings.Repeat("9", 15)
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeactivate_ExcludesFromSearch(t *testing.T) {
	repo := newMockPatientRepo(ashaRao())
	svc := newTestService(repo, false)

	if err := svc.Deactivate(context.Background(), "PAT-250101-001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := svc.Search(context.Background(), Query{ContactNumber: "9876543210", FullName: "Asha Rao"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("expected deactivated patient to be excluded")
	}

	// Re-registration is allowed once the original is inactive.
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Errorf("expected registration after deactivation to succeed, got %v", err)
	}
}

func TestDeactivate_NotFound(t *testing.T) {
	svc := newTestService(newMockPatientRepo(), false)
	if err := svc.Deactivate(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveContact(t *testing.T) {
	svc := newTestService(newMockPatientRepo(ashaRao()), false)
	contact, ok, err := svc.ActiveContact(context.Background(), "PAT-250101-001")
	if !ok || err != nil {
		t.Fatalf("expected patient to exist, got %v %v", ok, err)
	}
	if contact != ashaRao().ContactNumber {
		t.Errorf("expected contact %q, got %q", ashaRao().ContactNumber, contact)
	}
	if _, ok, err := svc.ActiveContact(context.Background(), "missing"); ok || err != nil {
		t.Errorf("expected missing patient, got %v %v", ok, err)
	}
}

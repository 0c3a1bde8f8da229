package account

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthops/healthops/internal/platform/auth"
	"github.com/healthops/healthops/internal/platform/notification"
)

var testKey = []byte("test-signing-key")

type mockUserRepo struct {
	users     map[string]*User
	lastLogin map[uuid.UUID]time.Time
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*User), lastLogin: make(map[uuid.UUID]time.Time)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	key := strings.ToLower(u.Email)
	if _, ok := m.users[key]; ok {
		return ErrEmailTaken
	}
	u.ID = uuid.New()
	m.users[key] = u
	return nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.lastLogin[id] = at
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	for _, u := range m.users {
		if u.ID == id {
			u.PasswordHash = hash
			return nil
		}
	}
	return ErrNotFound
}

type memoryOTPStore struct {
	codes map[string]string
	ttls  map[string]time.Duration
}

func (s *memoryOTPStore) Save(_ context.Context, subject, code string, ttl time.Duration) error {
	s.codes[subject] = code
	s.ttls[subject] = ttl
	return nil
}

func (s *memoryOTPStore) Consume(_ context.Context, subject, code string) (bool, error) {
	if s.codes[subject] != code || code == "" {
		return false, nil
	}
	delete(s.codes, subject)
	return true, nil
}

type sent struct {
	templateID string
	recipient  string
	data       map[string]string
}

type recordingNotifier struct {
	sent []sent
}

func (n *recordingNotifier) Dispatch(_ context.Context, templateID, recipient string, data map[string]string) {
	n.sent = append(n.sent, sent{templateID: templateID, recipient: recipient, data: data})
}

type fixture struct {
	svc      *Service
	users    *mockUserRepo
	otps     *memoryOTPStore
	notifier *recordingNotifier
}

func newFixture() *fixture {
	f := &fixture{
		users:    newMockUserRepo(),
		otps:     &memoryOTPStore{codes: map[string]string{}, ttls: map[string]time.Duration{}},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.users, auth.NewTokenIssuer(testKey, time.Hour), f.otps, f.notifier,
		10*time.Minute, zerolog.Nop())
	f.svc.generateOTP = func(int) (string, error) { return "123456", nil }
	return f
}

func (f *fixture) register(t *testing.T) *User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "Nurse@Clinic.test", Password: "s3cret-pass", FullName: "Asha Nair",
		EmployeeID: "EMP-7", HospitalName: "City Care", Role: auth.RoleStaff,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	f.notifier.sent = nil
	return u
}

func TestRegister(t *testing.T) {
	f := newFixture()
	u, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: " Nurse@Clinic.test ", Password: "s3cret-pass", FullName: "Asha Nair",
		EmployeeID: "EMP-7", HospitalName: "City Care", Role: auth.RoleStaff,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != "nurse@clinic.test" || !u.IsActive || *u.EmployeeID != "EMP-7" {
		t.Errorf("unexpected user %+v", u)
	}
	if u.PasswordHash == "s3cret-pass" || !auth.CheckPassword(u.PasswordHash, "s3cret-pass") {
		t.Error("expected a bcrypt hash of the password")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].templateID != notification.TemplateUserRegistered {
		t.Fatalf("expected registration notification, got %+v", f.notifier.sent)
	}
	if f.notifier.sent[0].data["hospital_name"] != "City Care" {
		t.Errorf("unexpected notification data %v", f.notifier.sent[0].data)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture()
	f.register(t)
	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "NURSE@clinic.test", Password: "another-pass", FullName: "Other", Role: auth.RoleDoctor,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegister_AdminRoleRejected(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "root@clinic.test", Password: "s3cret-pass", FullName: "Root", Role: auth.RoleAdmin,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := f.users.GetByEmail(context.Background(), "root@clinic.test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no account to be stored, got %v", err)
	}
}

func TestCreateAdmin(t *testing.T) {
	f := newFixture()
	u, err := f.svc.CreateAdmin(context.Background(), "root@clinic.test", "s3cret-pass", "Root")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.RoleAdmin {
		t.Errorf("expected Admin role, got %s", u.Role)
	}
	tok, err := f.svc.Login(context.Background(), LoginRequest{Email: "root@clinic.test", Password: "s3cret-pass"})
	if err != nil || tok.AccessToken == "" {
		t.Fatalf("expected admin login to succeed, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "not-an-email", Password: "short", Role: "Janitor",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 4 {
		t.Errorf("expected 4 problems, got %v", verr.Problems)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture()
	u := f.register(t)

	tok, err := f.svc.Login(context.Background(), LoginRequest{Username: "nurse@clinic.test", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.TokenType != "bearer" {
		t.Errorf("expected bearer token type, got %s", tok.TokenType)
	}
	claims, err := auth.ParseToken(tok.AccessToken, testKey)
	if err != nil {
		t.Fatalf("token did not verify: %v", err)
	}
	if claims.Subject != "nurse@clinic.test" || claims.Role != auth.RoleStaff {
		t.Errorf("unexpected claims %+v", claims)
	}
	if _, ok := f.users.lastLogin[u.ID]; !ok {
		t.Error("expected last login to be recorded")
	}
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture()
	u := f.register(t)

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "nurse@clinic.test", Password: "wrong-pass"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	_, err = f.svc.Login(context.Background(), LoginRequest{Email: "ghost@clinic.test", Password: "s3cret-pass"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	u.IsActive = false
	_, err = f.svc.Login(context.Background(), LoginRequest{Email: "nurse@clinic.test", Password: "s3cret-pass"})
	if !errors.Is(err, ErrInactiveUser) {
		t.Errorf("expected ErrInactiveUser, got %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	f := newFixture()
	f.register(t)
	ctx := context.Background()

	if err := f.svc.RequestPasswordReset(ctx, ForgotPasswordRequest{Email: "Nurse@clinic.test"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.otps.codes["nurse@clinic.test"] != "123456" || f.otps.ttls["nurse@clinic.test"] != 10*time.Minute {
		t.Fatalf("expected stored otp with ttl, got %v %v", f.otps.codes, f.otps.ttls)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].data["otp"] != "123456" ||
		f.notifier.sent[0].data["ttl_minutes"] != "10" {
		t.Fatalf("unexpected otp notification %+v", f.notifier.sent)
	}

	// A wrong code keeps the stored one usable.
	err := f.svc.ResetPassword(ctx, ResetPasswordRequest{Email: "nurse@clinic.test", OTP: "000000", NewPassword: "brand-new-pass"})
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	err = f.svc.ResetPassword(ctx, ResetPasswordRequest{Email: "nurse@clinic.test", OTP: "123456", NewPassword: "brand-new-pass"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{Email: "nurse@clinic.test", Password: "brand-new-pass"}); err != nil {
		t.Errorf("expected login with new password, got %v", err)
	}

	// The code is single use.
	err = f.svc.ResetPassword(ctx, ResetPasswordRequest{Email: "nurse@clinic.test", OTP: "123456", NewPassword: "third-password"})
	if !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("expected replay to fail, got %v", err)
	}
}

func TestPasswordReset_UnknownUserAndShortPassword(t *testing.T) {
	f := newFixture()
	if err := f.svc.RequestPasswordReset(context.Background(), ForgotPasswordRequest{Email: "ghost@clinic.test"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	err := f.svc.ResetPassword(context.Background(), ResetPasswordRequest{Email: "ghost@clinic.test", OTP: "1", NewPassword: "short"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestMe(t *testing.T) {
	f := newFixture()
	f.register(t)
	ctx := auth.WithIdentity(context.Background(), "nurse@clinic.test", auth.RoleStaff)
	u, err := f.svc.Me(ctx)
	if err != nil || u.FullName != "Asha Nair" {
		t.Fatalf("unexpected result %+v %v", u, err)
	}
	if _, err := f.svc.Me(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound without identity, got %v", err)
	}
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func TestHandler_LoginForm(t *testing.T) {
	f := newFixture()
	f.register(t)
	h := NewHandler(f.svc)
	e := echo.New()

	form := url.Values{"username": {"nurse@clinic.test"}, "password": {"s3cret-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()

	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"token_type":"bearer"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_LoginWrongPassword(t *testing.T) {
	f := newFixture()
	f.register(t)
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/auth/token",
		strings.NewReader(`{"email":"nurse@clinic.test","password":"nope-nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectHTTPError(t, h.Login(e.NewContext(req, httptest.NewRecorder())), http.StatusUnauthorized)
}

func TestHandler_RegisterDuplicate(t *testing.T) {
	f := newFixture()
	f.register(t)
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"nurse@clinic.test","password":"s3cret-pass","full_name":"X","role":"Staff"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectHTTPError(t, h.Register(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
}

func TestHandler_RegisterAdminRefused(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"root@clinic.test","password":"s3cret-pass","full_name":"Root","role":"Admin"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectHTTPError(t, h.Register(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "root@clinic.test", Password: "s3cret-pass"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected no admin account to exist, got %v", err)
	}
}

func TestHandler_RegisterHidesHash(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"dr@clinic.test","password":"s3cret-pass","full_name":"Dr Rao","role":"Doctor"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Register(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated || strings.Contains(rec.Body.String(), "password") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ForgotPasswordUnknownUser(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password/otp", strings.NewReader(`{"email":"ghost@clinic.test"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectHTTPError(t, h.ForgotPassword(e.NewContext(req, httptest.NewRecorder())), http.StatusNotFound)
}

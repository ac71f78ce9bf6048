package bloodrequest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
	"github.com/hitoshi/donormatch/internal/visibility"
)

// --- モック ---

type mockRequesterRepo struct {
	profile *model.RequesterProfile
}

func (m *mockRequesterRepo) FindByUserID(ctx context.Context, userID string) (*model.RequesterProfile, error) {
	return m.profile, nil
}
func (m *mockRequesterRepo) Create(ctx context.Context, p *model.RequesterProfile) error {
	return nil
}
func (m *mockRequesterRepo) Update(ctx context.Context, p *model.RequesterProfile) error {
	return nil
}

// mockRequestRepo は1件の依頼を保持し、UpdateWithLockをコピーに対して適用する。
type mockRequestRepo struct {
	stored    *model.Request
	requester model.RequesterContact
	createFn  func(ctx context.Context, req *model.Request) error
	saved     int
}

func (m *mockRequestRepo) FindByID(ctx context.Context, id string) (*model.Request, error) {
	if m.stored == nil || m.stored.ID != id {
		return nil, nil
	}
	cp := *m.stored
	return &cp, nil
}
func (m *mockRequestRepo) FindWithRequester(ctx context.Context, id string) (*repository.RequestWithRequester, error) {
	if m.stored == nil || m.stored.ID != id {
		return nil, nil
	}
	return &repository.RequestWithRequester{Request: *m.stored, Requester: m.requester}, nil
}
func (m *mockRequestRepo) ListOpenMatching(ctx context.Context, bloodType model.BloodType, city, country string) ([]*model.Request, error) {
	return nil, nil
}
func (m *mockRequestRepo) Create(ctx context.Context, req *model.Request) error {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil
}
func (m *mockRequestRepo) UpdateWithLock(ctx context.Context, id string, mutate repository.RequestMutator) (*model.Request, error) {
	if m.stored == nil || m.stored.ID != id {
		return nil, nil
	}
	cp := *m.stored
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	m.stored = &cp
	m.saved++
	out := cp
	return &out, nil
}
func (m *mockRequestRepo) ListByRequesterWithCounts(ctx context.Context, requesterID string, limit int) ([]repository.RequestWithApplicantCount, error) {
	return nil, nil
}
func (m *mockRequestRepo) CountByStatus(ctx context.Context, requesterID string) (map[model.RequestStatus]int, error) {
	return nil, nil
}

type mockAppRepo struct {
	latest     *model.Application
	count      int
	applicants []repository.ApplicationWithDonor
}

func (m *mockAppRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	return nil, nil
}
func (m *mockAppRepo) FindActive(ctx context.Context, requestID, donorID string) (*model.Application, error) {
	return nil, nil
}
func (m *mockAppRepo) FindLatest(ctx context.Context, requestID, donorID string) (*model.Application, error) {
	return m.latest, nil
}
func (m *mockAppRepo) Create(ctx context.Context, app *model.Application) error {
	return nil
}
func (m *mockAppRepo) Withdraw(ctx context.Context, id string, at time.Time) (bool, error) {
	return false, nil
}
func (m *mockAppRepo) CountByDonor(ctx context.Context, donorID string, status model.ApplicationStatus) (int, error) {
	return 0, nil
}
func (m *mockAppRepo) ListByDonorWithRequest(ctx context.Context, donorID string, limit int) ([]repository.ApplicationWithRequest, error) {
	return nil, nil
}
func (m *mockAppRepo) ListByRequestWithDonor(ctx context.Context, requestID string) ([]repository.ApplicationWithDonor, error) {
	return m.applicants, nil
}
func (m *mockAppRepo) ListRecentByRequester(ctx context.Context, requesterID string, limit int) ([]repository.ApplicationWithDonor, error) {
	return nil, nil
}
func (m *mockAppRepo) CountByRequest(ctx context.Context, requestID string) (int, error) {
	return m.count, nil
}

// --- ヘルパー ---

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var owner = model.Principal{UserID: "requester-1", Role: model.RoleRequester}

func requesterProfile() *model.RequesterProfile {
	return &model.RequesterProfile{
		UserID:   owner.UserID,
		Name:     "General Hospital",
		Category: model.RequesterCategoryHospital,
		Phone:    "+20-100",
		City:     "Cairo",
		Country:  "Egypt",
	}
}

func storedRequest(status model.RequestStatus) *model.Request {
	return &model.Request{
		ID:              "req-1",
		RequesterID:     owner.UserID,
		BloodType:       model.BloodTypeANeg,
		UnitsNeeded:     1,
		Urgency:         model.UrgencyCritical,
		CaseDescription: "x",
		Status:          status,
		City:            "Cairo",
		Country:         "Egypt",
		CreatedAt:       fixedNow.Add(-time.Hour),
		UpdatedAt:       fixedNow.Add(-time.Hour),
	}
}

func newTestService(requests *mockRequestRepo, apps *mockAppRepo) *Service {
	if apps == nil {
		apps = &mockAppRepo{}
	}
	svc := NewService(&mockRequesterRepo{profile: requesterProfile()}, requests, apps, nil, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !model.HasCode(err, code) {
		t.Fatalf("expected error code %s, got %v", code, err)
	}
}

func ptr[T any](v T) *T { return &v }

// --- Create ---

func TestService_Create_DefaultsLocationAndForcesOpen(t *testing.T) {
	var saved *model.Request
	requests := &mockRequestRepo{
		createFn: func(ctx context.Context, req *model.Request) error {
			saved = req
			return nil
		},
	}
	svc := newTestService(requests, nil)

	req, err := svc.Create(context.Background(), owner, CreateInput{
		BloodType:       " a- ",
		UnitsNeeded:     1,
		Urgency:         "Critical",
		CaseDescription: "<b>urgent</b> surgery",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if saved == nil || saved.ID != req.ID {
		t.Fatal("request should be persisted")
	}
	if req.Status != model.RequestStatusOpen {
		t.Errorf("Status = %q, want Open", req.Status)
	}
	if req.BloodType != model.BloodTypeANeg {
		t.Errorf("BloodType = %q, want A-", req.BloodType)
	}
	if req.City != "Cairo" || req.Country != "Egypt" {
		t.Errorf("location = %s/%s, want profile defaults", req.City, req.Country)
	}
	if req.CaseDescription != "urgent surgery" {
		t.Errorf("CaseDescription = %q, want sanitized text", req.CaseDescription)
	}
}

func TestService_Create_Validation(t *testing.T) {
	valid := CreateInput{BloodType: "O+", UnitsNeeded: 2, Urgency: "High", CaseDescription: "x", City: "Giza", Country: "Egypt"}

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"unknown blood type", func(in *CreateInput) { in.BloodType = "C+" }},
		{"zero units", func(in *CreateInput) { in.UnitsNeeded = 0 }},
		{"fractional units", func(in *CreateInput) { in.UnitsNeeded = 1.5 }},
		{"unknown urgency", func(in *CreateInput) { in.Urgency = "Extreme" }},
		{"empty description", func(in *CreateInput) { in.CaseDescription = "   " }},
		{"description too long", func(in *CreateInput) { in.CaseDescription = strings.Repeat("a", 301) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockRequestRepo{}, nil)
			in := valid
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), owner, in)
			if !model.HasCategory(err, model.CategoryValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	t.Run("300 chars is accepted", func(t *testing.T) {
		svc := newTestService(&mockRequestRepo{}, nil)
		in := valid
		in.CaseDescription = strings.Repeat("a", 300)
		if _, err := svc.Create(context.Background(), owner, in); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestService_Create_RequiresRequester(t *testing.T) {
	svc := newTestService(&mockRequestRepo{}, nil)

	_, err := svc.Create(context.Background(), model.Principal{UserID: "d", Role: model.RoleDonor}, CreateInput{})
	if !model.HasCategory(err, model.CategoryAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

// --- Update ---

func TestService_Update(t *testing.T) {
	tests := []struct {
		name     string
		status   model.RequestStatus
		patch    Patch
		viewer   model.Principal
		wantCode string
	}{
		{"not owner", model.RequestStatusOpen, Patch{Status: ptr("Resolved")}, model.Principal{UserID: "requester-2", Role: model.RoleRequester}, model.ErrCodeNotOwner},
		{"immutable field", model.RequestStatusOpen, Patch{Disallowed: []string{"blood_type"}}, owner, model.ErrCodeDisallowedField},
		{"core edit on resolved", model.RequestStatusResolved, Patch{UnitsNeeded: ptr(2.0)}, owner, model.ErrCodeValidation},
		{"same status", model.RequestStatusOpen, Patch{Status: ptr("Open")}, owner, model.ErrCodeAlreadyInStatus},
		{"reopen", model.RequestStatusCancelled, Patch{Status: ptr("Open")}, owner, model.ErrCodeInvalidTransition},
		{"resolved to cancelled", model.RequestStatusResolved, Patch{Status: ptr("Cancelled")}, owner, model.ErrCodeInvalidTransition},
		{"unknown status", model.RequestStatusOpen, Patch{Status: ptr("Closed")}, owner, model.ErrCodeValidation},
		{"invalid units", model.RequestStatusOpen, Patch{UnitsNeeded: ptr(-1.0)}, owner, model.ErrCodeValidation},
		{"mistyped units", model.RequestStatusOpen, Patch{Invalid: []string{"units_needed"}}, owner, model.ErrCodeValidation},
		{"mistyped units from non-owner", model.RequestStatusOpen, Patch{Invalid: []string{"units_needed"}}, model.Principal{UserID: "requester-2", Role: model.RoleRequester}, model.ErrCodeNotOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := &mockRequestRepo{stored: storedRequest(tt.status)}
			svc := NewService(&mockRequesterRepo{profile: &model.RequesterProfile{UserID: tt.viewer.UserID}}, requests, &mockAppRepo{}, nil, nil)

			_, err := svc.Update(context.Background(), tt.viewer, "req-1", tt.patch)
			assertCode(t, err, tt.wantCode)
			if requests.saved != 0 {
				t.Error("failed update must not persist anything")
			}
			if requests.stored.Status != tt.status {
				t.Errorf("stored status changed to %q", requests.stored.Status)
			}
		})
	}
}

func TestService_Update_EditsCoreFieldsWhileOpen(t *testing.T) {
	requests := &mockRequestRepo{stored: storedRequest(model.RequestStatusOpen)}
	svc := newTestService(requests, nil)

	got, err := svc.Update(context.Background(), owner, "req-1", Patch{
		UnitsNeeded:     ptr(3.0),
		Urgency:         ptr("Low"),
		CaseDescription: ptr("  updated  "),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got.UnitsNeeded != 3 || got.Urgency != model.UrgencyLow || got.CaseDescription != "updated" {
		t.Errorf("unexpected request: %+v", got)
	}
	if !got.UpdatedAt.Equal(fixedNow) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixedNow)
	}
	if got.BloodType != model.BloodTypeANeg || got.City != "Cairo" {
		t.Error("immutable fields must not change")
	}
}

func TestService_Update_LogsRejectedTransition(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var logs bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))

	svc := newTestService(&mockRequestRepo{stored: storedRequest(model.RequestStatusCancelled)}, nil)

	_, err := svc.Update(context.Background(), owner, "req-1", Patch{Status: ptr(" Open ")})
	assertCode(t, err, model.ErrCodeInvalidTransition)

	out := logs.String()
	for _, want := range []string{`"msg":"request status change rejected"`, `"from":"Cancelled"`, `"to":"Open"`, `"request_id":"req-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %s missing %s", out, want)
		}
	}
}

func TestService_Update_OtherRejectionsAreNotLogged(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var logs bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))

	svc := newTestService(&mockRequestRepo{stored: storedRequest(model.RequestStatusOpen)}, nil)

	_, err := svc.Update(context.Background(), owner, "req-1", Patch{Status: ptr("Open")})
	assertCode(t, err, model.ErrCodeAlreadyInStatus)
	if logs.Len() != 0 {
		t.Errorf("unexpected log output: %s", logs.String())
	}
}

func TestService_Update_NotFound(t *testing.T) {
	svc := newTestService(&mockRequestRepo{}, nil)

	_, err := svc.Update(context.Background(), owner, "missing", Patch{Status: ptr("Resolved")})
	assertCode(t, err, model.ErrCodeRequestNotFound)
}

func TestService_Update_StorageErrorIsWrapped(t *testing.T) {
	svc := newTestService(&mockRequestRepo{}, nil)
	svc.requestRepo = &failingRequestRepo{}

	_, err := svc.Update(context.Background(), owner, "req-1", Patch{Status: ptr("Resolved")})
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

var errStorage = errors.New("connection reset")

type failingRequestRepo struct {
	mockRequestRepo
}

func (m *failingRequestRepo) UpdateWithLock(ctx context.Context, id string, mutate repository.RequestMutator) (*model.Request, error) {
	return nil, errStorage
}

// --- Get ---

func TestService_Get_GatesContact(t *testing.T) {
	contact := model.RequesterContact{
		UserID: owner.UserID, Email: "clinic@example.com", Name: "General Hospital",
		Category: model.RequesterCategoryHospital, Phone: "+20-100", City: "Cairo", Country: "Egypt",
	}
	donor := model.Principal{UserID: "donor-1", Role: model.RoleDonor}

	tests := []struct {
		name      string
		viewer    model.Principal
		latest    *model.Application
		wantFull  bool
		wantCount bool
	}{
		{"owner", owner, nil, true, true},
		{"donor without application", donor, nil, false, false},
		{"donor with active application", donor, &model.Application{ID: "a", Status: model.ApplicationStatusApplied}, true, false},
		{"donor with withdrawn application", donor, &model.Application{ID: "a", Status: model.ApplicationStatusWithdrawn}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := &mockRequestRepo{stored: storedRequest(model.RequestStatusOpen), requester: contact}
			svc := newTestService(requests, &mockAppRepo{latest: tt.latest, count: 4})

			view, err := svc.Get(context.Background(), tt.viewer, "req-1")
			if err != nil {
				t.Fatalf("Get returned error: %v", err)
			}
			full, isFull := view.Requester.(visibility.FullRequesterView)
			if isFull != tt.wantFull {
				t.Fatalf("full view = %v, want %v", isFull, tt.wantFull)
			}
			if isFull && (full.Phone != "+20-100" || full.Email != "clinic@example.com") {
				t.Errorf("full view missing contact: %+v", full)
			}
			if view.Requester.Identity().Name != "General Hospital" {
				t.Error("identity fields must always be visible")
			}
			if (view.ApplicantCount != nil) != tt.wantCount {
				t.Errorf("ApplicantCount present = %v, want %v", view.ApplicantCount != nil, tt.wantCount)
			}
			if tt.wantCount && *view.ApplicantCount != 4 {
				t.Errorf("ApplicantCount = %d, want 4", *view.ApplicantCount)
			}
		})
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc := newTestService(&mockRequestRepo{}, nil)

	_, err := svc.Get(context.Background(), owner, "missing")
	assertCode(t, err, model.ErrCodeRequestNotFound)
}

// --- ListApplicants ---

func TestService_ListApplicants(t *testing.T) {
	apps := &mockAppRepo{
		applicants: []repository.ApplicationWithDonor{
			{
				Application: model.Application{ID: "a-1", RequestID: "req-1", DonorID: "donor-1", Status: model.ApplicationStatusApplied},
				Donor:       model.DonorContact{UserID: "donor-1", Email: "d@example.com", Phone: "+20-200"},
			},
		},
	}
	svc := newTestService(&mockRequestRepo{stored: storedRequest(model.RequestStatusOpen)}, apps)

	got, err := svc.ListApplicants(context.Background(), owner, "req-1")
	if err != nil {
		t.Fatalf("ListApplicants returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 applicant, got %d", len(got))
	}
	if got[0].Donor.Phone != "+20-200" || got[0].Donor.Email != "d@example.com" {
		t.Errorf("owner should see donor contact: %+v", got[0].Donor)
	}
}

func TestService_ListApplicants_NotOwner(t *testing.T) {
	other := model.Principal{UserID: "requester-2", Role: model.RoleRequester}
	svc := NewService(&mockRequesterRepo{profile: &model.RequesterProfile{UserID: other.UserID}},
		&mockRequestRepo{stored: storedRequest(model.RequestStatusOpen)}, &mockAppRepo{}, nil, nil)

	_, err := svc.ListApplicants(context.Background(), other, "req-1")
	assertCode(t, err, model.ErrCodeNotOwner)
}

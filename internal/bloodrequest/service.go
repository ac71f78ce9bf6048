// Package bloodrequest は献血依頼のライフサイクルのドメインロジックを提供する。
// 依頼の作成、編集、状態遷移、および依頼者側と閲覧者側の読み出しを扱う。
package bloodrequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/donormatch/internal/metrics"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
	"github.com/hitoshi/donormatch/internal/security"
	"github.com/hitoshi/donormatch/internal/visibility"
)

// EditableFields は作成後に編集可能なフィールドのJSON名。
var EditableFields = []string{"units_needed", "urgency", "case_description", "status"}

// IsEditable はフィールドが編集可能かを返す。
func IsEditable(field string) bool {
	for _, f := range EditableFields {
		if f == field {
			return true
		}
	}
	return false
}

// CreateInput は依頼作成の入力。
// UnitsNeededはJSONの数値をそのまま受け取り、整数であることをここで検証する。
type CreateInput struct {
	BloodType       string
	UnitsNeeded     float64
	Urgency         string
	CaseDescription string
	City            string
	Country         string
}

// Patch は依頼の部分更新。nilのフィールドは変更しない。
type Patch struct {
	UnitsNeeded     *float64
	Urgency         *string
	CaseDescription *string
	Status          *string
	// Disallowed は編集不可として受け付けたフィールド名。
	Disallowed []string
	// Invalid は型が合わず値を取り出せなかった編集可能フィールド名。
	Invalid []string
}

func (p Patch) editsCore() bool {
	return p.UnitsNeeded != nil || p.Urgency != nil || p.CaseDescription != nil
}

// Service は献血依頼のサービス層。
type Service struct {
	requesterRepo repository.RequesterProfileRepository
	requestRepo   repository.RequestRepository
	appRepo       repository.ApplicationRepository
	sanitizer     security.TextSanitizerService
	metrics       metrics.MetricsCollector
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// sanitizerがnilの場合はStrictPolicyのサニタイザを使用する。
func NewService(
	requesterRepo repository.RequesterProfileRepository,
	requestRepo repository.RequestRepository,
	appRepo repository.ApplicationRepository,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		requesterRepo: requesterRepo,
		requestRepo:   requestRepo,
		appRepo:       appRepo,
		sanitizer:     sanitizer,
		metrics:       collector,
		now:           time.Now,
	}
}

func (s *Service) requesterProfile(ctx context.Context, p model.Principal, action string) (*model.RequesterProfile, error) {
	if err := p.Require(model.RoleRequester, action); err != nil {
		return nil, err
	}
	profile, err := s.requesterRepo.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("依頼者プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError("Requester")
	}
	return profile, nil
}

func invalid(message string) error {
	return model.NewValidationError(model.ErrCodeValidation, message)
}

const unitsMessage = "units_needed must be an integer ≥ 1"

// invalidField は型の合わない値を受け取ったフィールドの検証エラーを返す。
func invalidField(field string) error {
	if field == "units_needed" {
		return invalid(unitsMessage)
	}
	return invalid(fmt.Sprintf("%s has an invalid value", field))
}

func parseUnits(v float64) (int, error) {
	if v < 1 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, invalid(unitsMessage)
	}
	return int(v), nil
}

func (s *Service) cleanDescription(raw string) (string, error) {
	desc := s.sanitizer.Sanitize(raw)
	if desc == "" || utf8.RuneCountInString(desc) > model.MaxCaseDescriptionLength {
		return "", invalid(fmt.Sprintf("case_description is required and must be ≤ %d chars", model.MaxCaseDescriptionLength))
	}
	return desc, nil
}

// Create は依頼をOpen状態で作成する。
// city/countryが省略された場合は依頼者プロフィールの値を使用する。
func (s *Service) Create(ctx context.Context, p model.Principal, in CreateInput) (*model.Request, error) {
	profile, err := s.requesterProfile(ctx, p, "create requests")
	if err != nil {
		return nil, err
	}

	bloodType := model.NormalizeBloodType(in.BloodType)
	if !bloodType.Valid() {
		return nil, invalid("Invalid or missing blood_type")
	}
	units, err := parseUnits(in.UnitsNeeded)
	if err != nil {
		return nil, err
	}
	urgency := model.Urgency(strings.TrimSpace(in.Urgency))
	if !urgency.Valid() {
		return nil, invalid("Invalid or missing urgency")
	}
	desc, err := s.cleanDescription(in.CaseDescription)
	if err != nil {
		return nil, err
	}

	city := strings.TrimSpace(in.City)
	if city == "" {
		city = profile.City
	}
	country := strings.TrimSpace(in.Country)
	if country == "" {
		country = profile.Country
	}
	if city == "" || country == "" {
		return nil, invalid("city and country are required")
	}

	now := s.now()
	req := &model.Request{
		ID:              uuid.New().String(),
		RequesterID:     profile.UserID,
		BloodType:       bloodType,
		UnitsNeeded:     units,
		Urgency:         urgency,
		CaseDescription: desc,
		Status:          model.RequestStatusOpen,
		City:            city,
		Country:         country,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("依頼の作成に失敗しました: %w", err)
	}

	s.metrics.RecordRequestCreated()
	slog.Info("request created",
		slog.String("request_id", req.ID),
		slog.String("requester_id", req.RequesterID),
		slog.String("blood_type", string(req.BloodType)),
	)
	return req, nil
}

// Update は所有者による依頼の編集と状態遷移を行う。
// 検証はロック取得後の最新の行に対して行い、失敗した場合は何も保存しない。
// 現在と同じ状態への遷移はエラーとする。
func (s *Service) Update(ctx context.Context, p model.Principal, requestID string, patch Patch) (*model.Request, error) {
	profile, err := s.requesterProfile(ctx, p, "edit requests")
	if err != nil {
		return nil, err
	}

	var from model.RequestStatus
	updated, err := s.requestRepo.UpdateWithLock(ctx, requestID, func(req *model.Request) error {
		from = req.Status
		return s.applyPatch(req, profile.UserID, patch)
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			if model.HasCode(err, model.ErrCodeInvalidTransition) {
				slog.Info("request status change rejected",
					slog.String("request_id", requestID),
					slog.String("from", string(from)),
					slog.String("to", strings.TrimSpace(*patch.Status)),
				)
			}
			return nil, err
		}
		return nil, fmt.Errorf("依頼の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewRequestNotFoundError()
	}

	if updated.Status != from {
		s.metrics.RecordRequestTransition(string(from), string(updated.Status))
		slog.Info("request status changed",
			slog.String("request_id", updated.ID),
			slog.String("from", string(from)),
			slog.String("to", string(updated.Status)),
		)
	}
	return updated, nil
}

// applyPatch はロック済みの依頼にpatchを適用する。
func (s *Service) applyPatch(req *model.Request, ownerID string, patch Patch) error {
	if req.RequesterID != ownerID {
		return model.NewNotOwnerError("request")
	}
	if len(patch.Disallowed) > 0 {
		return model.NewDisallowedFieldError(EditableFields)
	}
	if len(patch.Invalid) > 0 {
		return invalidField(patch.Invalid[0])
	}
	if patch.editsCore() && req.Status != model.RequestStatusOpen {
		return invalid("Only 'Open' requests can edit units/urgency/description")
	}

	changed := false
	if patch.UnitsNeeded != nil {
		units, err := parseUnits(*patch.UnitsNeeded)
		if err != nil {
			return err
		}
		req.UnitsNeeded = units
		changed = true
	}
	if patch.Urgency != nil {
		urgency := model.Urgency(strings.TrimSpace(*patch.Urgency))
		if !urgency.Valid() {
			return invalid("Invalid urgency")
		}
		req.Urgency = urgency
		changed = true
	}
	if patch.CaseDescription != nil {
		desc, err := s.cleanDescription(*patch.CaseDescription)
		if err != nil {
			return err
		}
		req.CaseDescription = desc
		changed = true
	}
	if patch.Status != nil {
		to := model.RequestStatus(strings.TrimSpace(*patch.Status))
		if !to.Valid() {
			return invalid("Status must be 'Open', 'Resolved', or 'Cancelled'")
		}
		if to == req.Status {
			return model.NewAlreadyInStatusError(to)
		}
		// ResolvedとCancelledは終端状態
		if req.Status != model.RequestStatusOpen {
			return model.NewInvalidTransitionError(req.Status, to)
		}
		req.Status = to
		changed = true
	}

	if changed {
		req.UpdatedAt = s.now()
	}
	return nil
}

// Get は閲覧者に応じて連絡先を開示または除去した依頼の詳細を返す。
func (s *Service) Get(ctx context.Context, p model.Principal, requestID string) (*visibility.RequestView, error) {
	switch p.Role {
	case model.RoleDonor, model.RoleRequester:
	default:
		return nil, model.NewUnauthorizedError("Unknown role")
	}

	rw, err := s.requestRepo.FindWithRequester(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("依頼の取得に失敗しました: %w", err)
	}
	if rw == nil {
		return nil, model.NewRequestNotFoundError()
	}

	var latest *model.Application
	count := 0
	if p.UserID == rw.RequesterID {
		count, err = s.appRepo.CountByRequest(ctx, rw.ID)
		if err != nil {
			return nil, fmt.Errorf("応募数の取得に失敗しました: %w", err)
		}
	} else {
		latest, err = s.appRepo.FindLatest(ctx, rw.ID, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
		}
	}

	view := visibility.ForViewer(p, &rw.Request, rw.Requester, latest, count)
	return &view, nil
}

// ListMine は依頼者自身の依頼を応募数付きで新しい順に返す。
func (s *Service) ListMine(ctx context.Context, p model.Principal) ([]repository.RequestWithApplicantCount, error) {
	profile, err := s.requesterProfile(ctx, p, "view their requests")
	if err != nil {
		return nil, err
	}
	requests, err := s.requestRepo.ListByRequesterWithCounts(ctx, profile.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("依頼一覧の取得に失敗しました: %w", err)
	}
	return requests, nil
}

// ListApplicants は所有者に依頼への応募者を連絡先付きで返す。
func (s *Service) ListApplicants(ctx context.Context, p model.Principal, requestID string) ([]visibility.ApplicantView, error) {
	profile, err := s.requesterProfile(ctx, p, "view applicants")
	if err != nil {
		return nil, err
	}

	req, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("依頼の取得に失敗しました: %w", err)
	}
	if req == nil {
		return nil, model.NewRequestNotFoundError()
	}
	if req.RequesterID != profile.UserID {
		return nil, model.NewNotOwnerError("request")
	}

	rows, err := s.appRepo.ListByRequestWithDonor(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("応募者一覧の取得に失敗しました: %w", err)
	}
	views := make([]visibility.ApplicantView, len(rows))
	for i, row := range rows {
		views[i] = visibility.ProjectApplicant(row.Application, row.Donor)
	}
	return views, nil
}

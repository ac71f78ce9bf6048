// Package application は献血者の応募ライフサイクルのドメインロジックを提供する。
// 応募の作成と取り下げ、および献血者側の一覧取得を扱う。
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/donormatch/internal/eligibility"
	"github.com/hitoshi/donormatch/internal/matching"
	"github.com/hitoshi/donormatch/internal/metrics"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
)

// 応募拒否理由のメトリクスラベル
const (
	rejectNoProfile   = "no_profile"
	rejectMissingDate = "missing_last_donation"
	rejectCoolingDown = "cooling_down"
	rejectNotOpen     = "not_open"
	rejectMismatch    = "mismatch"
	rejectDuplicate   = "duplicate"
)

// MatchingRequest はマッチした依頼と、呼び出し元の献血者による最新の応募の組。
type MatchingRequest struct {
	Request              *model.Request
	MyApplication        *model.Application
	HasActiveApplication bool
}

// Service は応募のサービス層。
type Service struct {
	donorRepo   repository.DonorProfileRepository
	requestRepo repository.RequestRepository
	appRepo     repository.ApplicationRepository
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	donorRepo repository.DonorProfileRepository,
	requestRepo repository.RequestRepository,
	appRepo repository.ApplicationRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		donorRepo:   donorRepo,
		requestRepo: requestRepo,
		appRepo:     appRepo,
		metrics:     collector,
		now:         time.Now,
	}
}

// donorProfile は献血者ロールを確認し、プロフィールを取得する。
func (s *Service) donorProfile(ctx context.Context, p model.Principal, action string) (*model.DonorProfile, error) {
	if err := p.Require(model.RoleDonor, action); err != nil {
		return nil, err
	}
	profile, err := s.donorRepo.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("献血者プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError("Donor")
	}
	return profile, nil
}

// Apply は依頼への応募を作成する。
// 前提条件はロール、プロフィール、適格性、依頼の存在と状態、マッチ、重複の順に検証し、
// 最初に満たされなかった条件のエラーを返す。
func (s *Service) Apply(ctx context.Context, p model.Principal, requestID string) (*model.Application, error) {
	if err := p.Require(model.RoleDonor, "apply to requests"); err != nil {
		return nil, err
	}
	profile, err := s.donorRepo.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("献血者プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		s.metrics.RecordApplyRejected(rejectNoProfile)
		return nil, model.NewProfileNotFoundError("Donor")
	}

	now := s.now()
	elig := eligibility.Evaluate(profile.LastDonationDate, now)
	switch elig.Status {
	case eligibility.StatusEligible:
	case eligibility.StatusCoolingDown:
		s.metrics.RecordApplyRejected(rejectCoolingDown)
		return nil, model.NewNotEligibleError(elig.DaysRemaining)
	default:
		s.metrics.RecordApplyRejected(rejectMissingDate)
		return nil, model.NewMissingLastDonationError()
	}

	req, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("依頼の取得に失敗しました: %w", err)
	}
	if req == nil {
		return nil, model.NewRequestNotFoundError()
	}
	if req.Status != model.RequestStatusOpen {
		s.metrics.RecordApplyRejected(rejectNotOpen)
		return nil, model.NewRequestNotOpenError()
	}
	if !matching.CriteriaFromDonor(profile).MatchesProfile(req) {
		s.metrics.RecordApplyRejected(rejectMismatch)
		return nil, model.NewRequestMismatchError()
	}

	existing, err := s.appRepo.FindActive(ctx, req.ID, profile.UserID)
	if err != nil {
		return nil, fmt.Errorf("有効な応募の確認に失敗しました: %w", err)
	}
	if existing != nil {
		s.metrics.RecordApplyRejected(rejectDuplicate)
		return nil, model.NewAlreadyAppliedError()
	}

	app := &model.Application{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		DonorID:   profile.UserID,
		Status:    model.ApplicationStatusApplied,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// 確認と作成の間に別の応募が入った場合は一意制約で検出する
	if err := s.appRepo.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveApplication) {
			s.metrics.RecordApplyRejected(rejectDuplicate)
			return nil, model.NewAlreadyAppliedError()
		}
		return nil, fmt.Errorf("応募の作成に失敗しました: %w", err)
	}

	s.metrics.RecordApplicationCreated()
	slog.Info("application created",
		slog.String("application_id", app.ID),
		slog.String("request_id", app.RequestID),
		slog.String("donor_id", app.DonorID),
	)
	return app, nil
}

// Withdraw はApplied状態の応募をWithdrawnにする。
// 取り下げ済みの行は再利用されず、再応募は新しい行として作成される。
func (s *Service) Withdraw(ctx context.Context, p model.Principal, applicationID string) (*model.Application, error) {
	profile, err := s.donorProfile(ctx, p, "withdraw applications")
	if err != nil {
		return nil, err
	}

	app, err := s.appRepo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError()
	}
	if app.DonorID != profile.UserID {
		return nil, model.NewNotOwnerError("application")
	}
	if app.Status != model.ApplicationStatusApplied {
		return nil, model.NewNotWithdrawableError()
	}

	now := s.now()
	ok, err := s.appRepo.Withdraw(ctx, app.ID, now)
	if err != nil {
		return nil, fmt.Errorf("応募の取り下げに失敗しました: %w", err)
	}
	if !ok {
		// 読み出し後に別リクエストが取り下げた
		return nil, model.NewNotWithdrawableError()
	}

	app.Status = model.ApplicationStatusWithdrawn
	app.UpdatedAt = now
	s.metrics.RecordApplicationWithdrawn()
	slog.Info("application withdrawn",
		slog.String("application_id", app.ID),
		slog.String("request_id", app.RequestID),
		slog.String("donor_id", app.DonorID),
	)
	return app, nil
}

// ListMine は献血者自身の応募を依頼情報付きで新しい順に返す。
func (s *Service) ListMine(ctx context.Context, p model.Principal) ([]repository.ApplicationWithRequest, error) {
	profile, err := s.donorProfile(ctx, p, "view their applications")
	if err != nil {
		return nil, err
	}
	apps, err := s.appRepo.ListByDonorWithRequest(ctx, profile.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// ListMatching は献血者にマッチするOpen状態の依頼を返す。
// 各依頼には献血者による最新の応募（取り下げ済みを含む）が付与される。
func (s *Service) ListMatching(ctx context.Context, p model.Principal, order matching.Order) ([]MatchingRequest, error) {
	profile, err := s.donorProfile(ctx, p, "view matching requests")
	if err != nil {
		return nil, err
	}

	criteria := matching.CriteriaFromDonor(profile)
	requests, err := s.requestRepo.ListOpenMatching(ctx, criteria.BloodType, criteria.City, criteria.Country)
	if err != nil {
		return nil, fmt.Errorf("マッチする依頼の取得に失敗しました: %w", err)
	}
	requests = criteria.Filter(requests)
	matching.Sort(requests, order)

	history, err := s.appRepo.ListByDonorWithRequest(ctx, profile.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("応募履歴の取得に失敗しました: %w", err)
	}
	// historyは新しい順なので、依頼ごとに最初に現れた応募が最新
	latest := make(map[string]*model.Application, len(history))
	for i := range history {
		app := history[i].Application
		if _, seen := latest[app.RequestID]; !seen {
			latest[app.RequestID] = &app
		}
	}

	results := make([]MatchingRequest, len(requests))
	for i, req := range requests {
		mine := latest[req.ID]
		results[i] = MatchingRequest{
			Request:              req,
			MyApplication:        mine,
			HasActiveApplication: mine.Active(),
		}
	}
	return results, nil
}

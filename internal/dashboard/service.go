// Package dashboard は献血者と依頼者のダッシュボードを組み立てる。
// 独自のビジネスルールは持たず、他のサービスと同じ条件で集計した読み出しモデルを返す。
package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/donormatch/internal/eligibility"
	"github.com/hitoshi/donormatch/internal/matching"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
)

// 各一覧の件数上限
const (
	RecommendedLimit      = 5
	DonorRecentAppsLimit  = 5
	RequesterWindow       = 20
	RecentRequestsLimit   = 8
	RecentApplicantsLimit = 15
)

// DonorStats は献血者ダッシュボードの集計値。
type DonorStats struct {
	MatchingRequests      int
	ApplicationsApplied   int
	ApplicationsWithdrawn int
	LastDonationDate      *time.Time
	Eligibility           eligibility.Result
}

// DonorDashboard は献血者ダッシュボード。
type DonorDashboard struct {
	Stats              DonorStats
	Recommended        []*model.Request
	RecentApplications []repository.ApplicationWithRequest
}

// RequesterStats は依頼者ダッシュボードの集計値。
type RequesterStats struct {
	OpenRequests      int
	ResolvedRequests  int
	CancelledRequests int
	// TotalApplicants は直近RequesterWindow件の依頼への応募数の合計。
	TotalApplicants int
	RecentActivity  int
}

// RequesterDashboard は依頼者ダッシュボード。
type RequesterDashboard struct {
	Stats            RequesterStats
	RecentRequests   []repository.RequestWithApplicantCount
	RecentApplicants []repository.ApplicationWithDonor
}

// Service はダッシュボードのサービス層。
type Service struct {
	donorRepo     repository.DonorProfileRepository
	requesterRepo repository.RequesterProfileRepository
	requestRepo   repository.RequestRepository
	appRepo       repository.ApplicationRepository
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	donorRepo repository.DonorProfileRepository,
	requesterRepo repository.RequesterProfileRepository,
	requestRepo repository.RequestRepository,
	appRepo repository.ApplicationRepository,
) *Service {
	return &Service{
		donorRepo:     donorRepo,
		requesterRepo: requesterRepo,
		requestRepo:   requestRepo,
		appRepo:       appRepo,
		now:           time.Now,
	}
}

// Donor は献血者ダッシュボードを返す。
func (s *Service) Donor(ctx context.Context, p model.Principal) (*DonorDashboard, error) {
	if err := p.Require(model.RoleDonor, "access dashboard"); err != nil {
		return nil, err
	}
	profile, err := s.donorRepo.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("献血者プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError("Donor")
	}

	criteria := matching.CriteriaFromDonor(profile)
	var (
		matches   []*model.Request
		applied   int
		withdrawn int
		recent    []repository.ApplicationWithRequest
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.requestRepo.ListOpenMatching(gctx, criteria.BloodType, criteria.City, criteria.Country)
		if err != nil {
			return fmt.Errorf("マッチする依頼の取得に失敗しました: %w", err)
		}
		matches = criteria.Filter(found)
		return nil
	})
	g.Go(func() error {
		n, err := s.appRepo.CountByDonor(gctx, profile.UserID, model.ApplicationStatusApplied)
		applied = n
		return err
	})
	g.Go(func() error {
		n, err := s.appRepo.CountByDonor(gctx, profile.UserID, model.ApplicationStatusWithdrawn)
		withdrawn = n
		return err
	})
	g.Go(func() error {
		apps, err := s.appRepo.ListByDonorWithRequest(gctx, profile.UserID, DonorRecentAppsLimit)
		recent = apps
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("献血者ダッシュボードの集計に失敗しました: %w", err)
	}

	matching.Sort(matches, matching.OrderNewest)
	recommended := matches
	if len(recommended) > RecommendedLimit {
		recommended = recommended[:RecommendedLimit]
	}

	return &DonorDashboard{
		Stats: DonorStats{
			MatchingRequests:      len(matches),
			ApplicationsApplied:   applied,
			ApplicationsWithdrawn: withdrawn,
			LastDonationDate:      profile.LastDonationDate,
			Eligibility:           eligibility.Evaluate(profile.LastDonationDate, s.now()),
		},
		Recommended:        recommended,
		RecentApplications: recent,
	}, nil
}

// Requester は依頼者ダッシュボードを返す。
func (s *Service) Requester(ctx context.Context, p model.Principal) (*RequesterDashboard, error) {
	if err := p.Require(model.RoleRequester, "access dashboard"); err != nil {
		return nil, err
	}
	profile, err := s.requesterRepo.FindByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("依頼者プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError("Requester")
	}

	var (
		window     []repository.RequestWithApplicantCount
		counts     map[model.RequestStatus]int
		applicants []repository.ApplicationWithDonor
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.requestRepo.ListByRequesterWithCounts(gctx, profile.UserID, RequesterWindow)
		window = rows
		return err
	})
	g.Go(func() error {
		c, err := s.requestRepo.CountByStatus(gctx, profile.UserID)
		counts = c
		return err
	})
	g.Go(func() error {
		rows, err := s.appRepo.ListRecentByRequester(gctx, profile.UserID, RecentApplicantsLimit)
		applicants = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("依頼者ダッシュボードの集計に失敗しました: %w", err)
	}

	total := 0
	for _, r := range window {
		total += r.ApplicantCount
	}
	recentRequests := window
	if len(recentRequests) > RecentRequestsLimit {
		recentRequests = recentRequests[:RecentRequestsLimit]
	}

	return &RequesterDashboard{
		Stats: RequesterStats{
			OpenRequests:      counts[model.RequestStatusOpen],
			ResolvedRequests:  counts[model.RequestStatusResolved],
			CancelledRequests: counts[model.RequestStatusCancelled],
			TotalApplicants:   total,
			RecentActivity:    len(applicants),
		},
		RecentRequests:   recentRequests,
		RecentApplicants: applicants,
	}, nil
}

package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/donormatch/internal/dashboard"
	"github.com/hitoshi/donormatch/internal/model"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	Donor(ctx context.Context, p model.Principal) (*dashboard.DonorDashboard, error)
	Requester(ctx context.Context, p model.Principal) (*dashboard.RequesterDashboard, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

type donorStatsResponse struct {
	MatchingRequests      int                 `json:"matching_requests"`
	ApplicationsApplied   int                 `json:"applications_applied"`
	ApplicationsWithdrawn int                 `json:"applications_withdrawn"`
	LastDonationDate      *string             `json:"last_donation_date"`
	Eligibility           eligibilityResponse `json:"eligibility"`
}

type donorDashboardResponse struct {
	Stats              donorStatsResponse      `json:"stats"`
	Recommended        []requestResponse       `json:"recommended"`
	RecentApplications []myApplicationResponse `json:"recent_applications"`
}

type requesterStatsResponse struct {
	OpenRequests      int `json:"open_requests"`
	ResolvedRequests  int `json:"resolved_requests"`
	CancelledRequests int `json:"cancelled_requests"`
	TotalApplicants   int `json:"total_applicants"`
	RecentActivity    int `json:"recent_activity"`
}

type requesterDashboardResponse struct {
	Stats            requesterStatsResponse    `json:"stats"`
	RecentRequests   []myRequestResponse       `json:"recent_requests"`
	RecentApplicants []recentApplicantResponse `json:"recent_applicants"`
}

// Donor は献血者ダッシュボードを返す。
// GET /requests/donor-dashboard
func (h *DashboardHandler) Donor(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	d, err := h.service.Donor(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, donorDashboardResponse{
		Stats: donorStatsResponse{
			MatchingRequests:      d.Stats.MatchingRequests,
			ApplicationsApplied:   d.Stats.ApplicationsApplied,
			ApplicationsWithdrawn: d.Stats.ApplicationsWithdrawn,
			LastDonationDate:      formatDate(d.Stats.LastDonationDate),
			Eligibility:           toEligibilityResponse(d.Stats.Eligibility),
		},
		Recommended:        toRequestResponses(d.Recommended),
		RecentApplications: toMyApplicationResponses(d.RecentApplications),
	})
}

// Requester は依頼者ダッシュボードを返す。
// GET /requests/requester-dashboard
func (h *DashboardHandler) Requester(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	d, err := h.service.Requester(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, requesterDashboardResponse{
		Stats: requesterStatsResponse{
			OpenRequests:      d.Stats.OpenRequests,
			ResolvedRequests:  d.Stats.ResolvedRequests,
			CancelledRequests: d.Stats.CancelledRequests,
			TotalApplicants:   d.Stats.TotalApplicants,
			RecentActivity:    d.Stats.RecentActivity,
		},
		RecentRequests:   toMyRequestResponses(d.RecentRequests),
		RecentApplicants: toRecentApplicantResponses(d.RecentApplicants),
	})
}

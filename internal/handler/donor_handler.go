package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/donormatch/internal/application"
	"github.com/hitoshi/donormatch/internal/matching"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
)

// ApplicationServiceInterface は献血者向けハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Apply(ctx context.Context, p model.Principal, requestID string) (*model.Application, error)
	Withdraw(ctx context.Context, p model.Principal, applicationID string) (*model.Application, error)
	ListMine(ctx context.Context, p model.Principal) ([]repository.ApplicationWithRequest, error)
	ListMatching(ctx context.Context, p model.Principal, order matching.Order) ([]application.MatchingRequest, error)
}

// DonorHandler は献血者の応募操作のHTTPハンドラー。
type DonorHandler struct {
	service ApplicationServiceInterface
}

// NewDonorHandler はDonorHandlerを生成する。
func NewDonorHandler(service ApplicationServiceInterface) *DonorHandler {
	return &DonorHandler{service: service}
}

// ListMatching は献血者にマッチするOpenの依頼を返す。
// GET /requests?sort=newest|urgency|units|distance
func (h *DonorHandler) ListMatching(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	order, err := matching.ParseOrder(r.URL.Query().Get("sort"))
	if err != nil {
		handleServiceError(w, model.NewValidationError(model.ErrCodeValidation,
			"sort must be one of newest, urgency, units, distance"))
		return
	}

	items, err := h.service.ListMatching(r.Context(), p, order)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMatchingResponses(items))
}

// Apply は依頼に応募する。
// POST /requests/{id}/apply
func (h *DonorHandler) Apply(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	app, err := h.service.Apply(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApplicationResponse(*app))
}

// Withdraw は応募を取り下げる。
// POST /requests/applications/{id}/withdraw
func (h *DonorHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	app, err := h.service.Withdraw(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationResponse(*app))
}

// ListMyApplications は自分の応募を新しい順に返す。
// GET /requests/my/applications
func (h *DonorHandler) ListMyApplications(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	rows, err := h.service.ListMine(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMyApplicationResponses(rows))
}

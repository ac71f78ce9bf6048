package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, p model.Principal) (*profile.Me, error)
	Create(ctx context.Context, p model.Principal, in profile.Input) (*profile.Me, error)
	Update(ctx context.Context, p model.Principal, in profile.Input) (*profile.Me, error)
	SetLastDonationDate(ctx context.Context, p model.Principal, raw string) (time.Time, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileRequest はプロフィール作成・更新のボディ。
// 省略されたフィールドは更新しない。
type profileRequest struct {
	Name             *string `json:"name"`
	Phone            *string `json:"phone"`
	City             *string `json:"city"`
	Country          *string `json:"country"`
	AddressLine      *string `json:"address_line"`
	BloodType        *string `json:"blood_type"`
	LastDonationDate *string `json:"last_donation_date"`
	PhotoURL         *string `json:"photo_url"`
	Category         *string `json:"category"`
}

func (req profileRequest) input() profile.Input {
	return profile.Input{
		Name:             req.Name,
		Phone:            req.Phone,
		City:             req.City,
		Country:          req.Country,
		AddressLine:      req.AddressLine,
		BloodType:        req.BloodType,
		LastDonationDate: req.LastDonationDate,
		PhotoURL:         req.PhotoURL,
		Category:         req.Category,
	}
}

type lastDonationRequest struct {
	Date string `json:"date"`
}

type lastDonationResponse struct {
	LastDonationDate string `json:"last_donation_date"`
}

// Get は自分のユーザー情報とプロフィールを返す。
// GET /me/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	me, err := h.service.Get(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMeResponse(me))
}

// Create はロールに応じたプロフィールを作成する。
// POST /me/profile
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	me, err := h.service.Create(r.Context(), p, req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMeResponse(me))
}

// Update はプロフィールを部分更新する。
// PUT /me/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	me, err := h.service.Update(r.Context(), p, req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMeResponse(me))
}

// SetLastDonationDate は最終献血日を更新する。
// POST /requests/last-donation
func (h *ProfileHandler) SetLastDonationDate(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}
	var req lastDonationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, err := h.service.SetLastDonationDate(r.Context(), p, req.Date)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lastDonationResponse{LastDonationDate: date.UTC().Format(time.DateOnly)})
}

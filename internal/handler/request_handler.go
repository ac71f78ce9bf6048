package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/donormatch/internal/bloodrequest"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
	"github.com/hitoshi/donormatch/internal/visibility"
)

// RequestServiceInterface は依頼者向けハンドラーが必要とするサービスインターフェース。
type RequestServiceInterface interface {
	Create(ctx context.Context, p model.Principal, in bloodrequest.CreateInput) (*model.Request, error)
	Update(ctx context.Context, p model.Principal, requestID string, patch bloodrequest.Patch) (*model.Request, error)
	Get(ctx context.Context, p model.Principal, requestID string) (*visibility.RequestView, error)
	ListMine(ctx context.Context, p model.Principal) ([]repository.RequestWithApplicantCount, error)
	ListApplicants(ctx context.Context, p model.Principal, requestID string) ([]visibility.ApplicantView, error)
}

// RequestHandler は献血依頼のHTTPハンドラー。
type RequestHandler struct {
	service RequestServiceInterface
}

// NewRequestHandler はRequestHandlerを生成する。
func NewRequestHandler(service RequestServiceInterface) *RequestHandler {
	return &RequestHandler{service: service}
}

// createRequestBody は依頼作成のボディ。
type createRequestBody struct {
	BloodType       string  `json:"blood_type"`
	UnitsNeeded     float64 `json:"units_needed"`
	Urgency         string  `json:"urgency"`
	CaseDescription string  `json:"case_description"`
	City            string  `json:"city"`
	Country         string  `json:"country"`
}

// Create は依頼を作成する。
// POST /requests
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}

	req, err := h.service.Create(r.Context(), p, bloodrequest.CreateInput{
		BloodType:       body.BloodType,
		UnitsNeeded:     body.UnitsNeeded,
		Urgency:         body.Urgency,
		CaseDescription: body.CaseDescription,
		City:            body.City,
		Country:         body.Country,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRequestResponse(*req))
}

// Get は閲覧者に応じた依頼の詳細を返す。
// GET /requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	view, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDetailResponse(view))
}

// Update は依頼を部分更新する。
// PATCH /requests/{id}
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}
	var raw map[string]json.RawMessage
	if !decodeJSON(w, r, &raw) {
		return
	}
	req, err := h.service.Update(r.Context(), p, chi.URLParam(r, "id"), decodePatch(raw))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestResponse(*req))
}

// decodePatch はフィールド名ごとのJSONをPatchに変換する。
// 編集不可のフィールドはDisallowedに、型の合わない値はInvalidに集め、
// 判定は所有者の確認後にサービス層で行う。nullは不正な値として扱う。
func decodePatch(raw map[string]json.RawMessage) bloodrequest.Patch {
	var patch bloodrequest.Patch
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		if !bloodrequest.IsEditable(field) {
			patch.Disallowed = append(patch.Disallowed, field)
			continue
		}
		value := raw[field]
		switch field {
		case "units_needed":
			var n float64
			if err := json.Unmarshal(value, &n); err != nil {
				patch.Invalid = append(patch.Invalid, field)
				continue
			}
			patch.UnitsNeeded = &n
		case "urgency":
			s := decodeString(value)
			patch.Urgency = &s
		case "case_description":
			s := decodeString(value)
			patch.CaseDescription = &s
		case "status":
			s := decodeString(value)
			patch.Status = &s
		}
	}
	return patch
}

// decodeString は文字列以外を空文字列として返す。空文字列はサービス層で不正な値として扱われる。
func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// ListMine は自分の依頼を応募数付きで返す。
// GET /requests/my/requests
func (h *RequestHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	rows, err := h.service.ListMine(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMyRequestResponses(rows))
}

// ListApplicants は依頼への応募者を連絡先付きで返す。
// GET /requests/{id}/applicants
func (h *RequestHandler) ListApplicants(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListApplicants(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicantResponses(views))
}

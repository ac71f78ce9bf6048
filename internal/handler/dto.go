package handler

import (
	"time"

	"github.com/hitoshi/donormatch/internal/application"
	"github.com/hitoshi/donormatch/internal/eligibility"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/profile"
	"github.com/hitoshi/donormatch/internal/repository"
	"github.com/hitoshi/donormatch/internal/visibility"
)

// requestResponse は献血依頼のAPIレスポンス。
type requestResponse struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requester_id"`
	BloodType       string    `json:"blood_type"`
	UnitsNeeded     int       `json:"units_needed"`
	Urgency         string    `json:"urgency"`
	CaseDescription string    `json:"case_description"`
	Status          string    `json:"status"`
	City            string    `json:"city"`
	Country         string    `json:"country"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// applicationResponse は応募のAPIレスポンス。
type applicationResponse struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	DonorID   string    `json:"donor_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// requesterResponse は依頼者情報。phoneとemailは開示が許可された場合のみ含む。
type requesterResponse struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	City        string `json:"city"`
	Country     string `json:"country"`
	AddressLine string `json:"address_line,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// donorResponse は応募者として所有者に返す献血者情報。
type donorResponse struct {
	UserID           string  `json:"user_id"`
	Email            string  `json:"email"`
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	BloodType        string  `json:"blood_type"`
	City             string  `json:"city"`
	Country          string  `json:"country"`
	LastDonationDate *string `json:"last_donation_date,omitempty"`
	PhotoURL         string  `json:"photo_url,omitempty"`
}

// requestDetailResponse は GET /requests/{id} のレスポンス。
type requestDetailResponse struct {
	requestResponse
	Requester            requesterResponse    `json:"requester"`
	IsOwner              bool                 `json:"is_owner"`
	ApplicantCount       *int                 `json:"applicant_count,omitempty"`
	MyApplication        *applicationResponse `json:"my_application,omitempty"`
	HasActiveApplication bool                 `json:"has_active_application"`
}

// matchingRequestResponse はマッチする依頼一覧の要素。
type matchingRequestResponse struct {
	requestResponse
	MyApplication        *applicationResponse `json:"my_application,omitempty"`
	HasActiveApplication bool                 `json:"has_active_application"`
}

// myApplicationResponse は献血者の応募一覧の要素。
type myApplicationResponse struct {
	applicationResponse
	Request requestResponse `json:"request"`
}

// myRequestResponse は依頼者の依頼一覧の要素。
type myRequestResponse struct {
	requestResponse
	ApplicantCount int `json:"applicant_count"`
}

// applicantResponse は応募者一覧の要素。
type applicantResponse struct {
	applicationResponse
	Donor donorResponse `json:"donor"`
}

// recentApplicantResponse は依頼者ダッシュボードの最近の応募者。
type recentApplicantResponse struct {
	applicantResponse
	RequestBloodType string `json:"request_blood_type"`
	RequestUrgency   string `json:"request_urgency"`
	RequestCity      string `json:"request_city"`
}

type eligibilityResponse struct {
	Status           string  `json:"status"`
	DaysSince        int     `json:"days_since"`
	DaysRemaining    int     `json:"days_remaining"`
	NextEligibleDate *string `json:"next_eligible_date,omitempty"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type donorProfileResponse struct {
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	BloodType        string  `json:"blood_type"`
	LastDonationDate *string `json:"last_donation_date"`
	City             string  `json:"city"`
	Country          string  `json:"country"`
	AddressLine      string  `json:"address_line"`
	PhotoURL         string  `json:"photo_url"`
}

type requesterProfileResponse struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Phone       string `json:"phone"`
	City        string `json:"city"`
	Country     string `json:"country"`
	AddressLine string `json:"address_line"`
}

type meResponse struct {
	User             userResponse              `json:"user"`
	DonorProfile     *donorProfileResponse     `json:"donor_profile,omitempty"`
	RequesterProfile *requesterProfileResponse `json:"requester_profile,omitempty"`
}

// --- 変換 ---

func formatDate(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.DateOnly)
	return &s
}

func toRequestResponse(req model.Request) requestResponse {
	return requestResponse{
		ID:              req.ID,
		RequesterID:     req.RequesterID,
		BloodType:       string(req.BloodType),
		UnitsNeeded:     req.UnitsNeeded,
		Urgency:         string(req.Urgency),
		CaseDescription: req.CaseDescription,
		Status:          string(req.Status),
		City:            req.City,
		Country:         req.Country,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
}

func toApplicationResponse(app model.Application) applicationResponse {
	return applicationResponse{
		ID:        app.ID,
		RequestID: app.RequestID,
		DonorID:   app.DonorID,
		Status:    string(app.Status),
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}
}

func optionalApplication(app *model.Application) *applicationResponse {
	if app == nil {
		return nil
	}
	resp := toApplicationResponse(*app)
	return &resp
}

// toRequesterResponse はビューの型に応じて連絡先を含めるかを決める。
func toRequesterResponse(view visibility.RequesterView) requesterResponse {
	id := view.Identity()
	resp := requesterResponse{
		UserID:      id.UserID,
		Name:        id.Name,
		Category:    string(id.Category),
		City:        id.City,
		Country:     id.Country,
		AddressLine: id.AddressLine,
	}
	if full, ok := view.(visibility.FullRequesterView); ok {
		resp.Phone = full.Phone
		resp.Email = full.Email
	}
	return resp
}

func toDonorResponse(d model.DonorContact) donorResponse {
	return donorResponse{
		UserID:           d.UserID,
		Email:            d.Email,
		Name:             d.Name,
		Phone:            d.Phone,
		BloodType:        string(d.BloodType),
		City:             d.City,
		Country:          d.Country,
		LastDonationDate: formatDate(d.LastDonationDate),
		PhotoURL:         d.PhotoURL,
	}
}

func toRequestDetailResponse(v *visibility.RequestView) requestDetailResponse {
	return requestDetailResponse{
		requestResponse:      toRequestResponse(v.Request),
		Requester:            toRequesterResponse(v.Requester),
		IsOwner:              v.IsOwner,
		ApplicantCount:       v.ApplicantCount,
		MyApplication:        optionalApplication(v.MyApplication),
		HasActiveApplication: v.HasActiveApplication,
	}
}

func toMatchingResponses(items []application.MatchingRequest) []matchingRequestResponse {
	out := make([]matchingRequestResponse, len(items))
	for i, m := range items {
		out[i] = matchingRequestResponse{
			requestResponse:      toRequestResponse(*m.Request),
			MyApplication:        optionalApplication(m.MyApplication),
			HasActiveApplication: m.HasActiveApplication,
		}
	}
	return out
}

func toMyApplicationResponses(rows []repository.ApplicationWithRequest) []myApplicationResponse {
	out := make([]myApplicationResponse, len(rows))
	for i, row := range rows {
		out[i] = myApplicationResponse{
			applicationResponse: toApplicationResponse(row.Application),
			Request:             toRequestResponse(row.Request),
		}
	}
	return out
}

func toMyRequestResponses(rows []repository.RequestWithApplicantCount) []myRequestResponse {
	out := make([]myRequestResponse, len(rows))
	for i, row := range rows {
		out[i] = myRequestResponse{
			requestResponse: toRequestResponse(row.Request),
			ApplicantCount:  row.ApplicantCount,
		}
	}
	return out
}

func toApplicantResponses(views []visibility.ApplicantView) []applicantResponse {
	out := make([]applicantResponse, len(views))
	for i, v := range views {
		out[i] = applicantResponse{
			applicationResponse: toApplicationResponse(v.Application),
			Donor:               toDonorResponse(v.Donor),
		}
	}
	return out
}

func toRecentApplicantResponses(rows []repository.ApplicationWithDonor) []recentApplicantResponse {
	out := make([]recentApplicantResponse, len(rows))
	for i, row := range rows {
		view := visibility.ProjectApplicant(row.Application, row.Donor)
		out[i] = recentApplicantResponse{
			applicantResponse: applicantResponse{
				applicationResponse: toApplicationResponse(view.Application),
				Donor:               toDonorResponse(view.Donor),
			},
			RequestBloodType: string(row.RequestBloodType),
			RequestUrgency:   string(row.RequestUrgency),
			RequestCity:      row.RequestCity,
		}
	}
	return out
}

func toRequestResponses(reqs []*model.Request) []requestResponse {
	out := make([]requestResponse, len(reqs))
	for i, r := range reqs {
		out[i] = toRequestResponse(*r)
	}
	return out
}

func toEligibilityResponse(r eligibility.Result) eligibilityResponse {
	return eligibilityResponse{
		Status:           string(r.Status),
		DaysSince:        r.DaysSince,
		DaysRemaining:    r.DaysRemaining,
		NextEligibleDate: formatDate(r.NextEligibleAt),
	}
}

func toMeResponse(me *profile.Me) meResponse {
	resp := meResponse{
		User: userResponse{
			ID:        me.User.ID,
			Email:     me.User.Email,
			Role:      string(me.User.Role),
			CreatedAt: me.User.CreatedAt,
		},
	}
	if d := me.Donor; d != nil {
		resp.DonorProfile = &donorProfileResponse{
			Name:             d.Name,
			Phone:            d.Phone,
			BloodType:        string(d.BloodType),
			LastDonationDate: formatDate(d.LastDonationDate),
			City:             d.City,
			Country:          d.Country,
			AddressLine:      d.AddressLine,
			PhotoURL:         d.PhotoURL,
		}
	}
	if q := me.Requester; q != nil {
		resp.RequesterProfile = &requesterProfileResponse{
			Name:        q.Name,
			Category:    string(q.Category),
			Phone:       q.Phone,
			City:        q.City,
			Country:     q.Country,
			AddressLine: q.AddressLine,
		}
	}
	return resp
}

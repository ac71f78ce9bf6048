package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/donormatch/internal/model"
)

// MemoryStore はプロセス内メモリに全データを保持するストア。
// 単一のミューテックスで直列化し、PostgreSQL実装と同じ一意性と状態遷移の規則を守る。
// ローカル開発（STORE_DRIVER=memory）とシナリオテストで使用する。
type MemoryStore struct {
	mu                sync.Mutex
	users             map[string]model.User
	donorProfiles     map[string]model.DonorProfile
	requesterProfiles map[string]model.RequesterProfile
	requests          map[string]model.Request
	applications      map[string]model.Application
	// seq は同一時刻に作成された行の挿入順を保持する。
	seq     map[string]int64
	nextSeq int64
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:             make(map[string]model.User),
		donorProfiles:     make(map[string]model.DonorProfile),
		requesterProfiles: make(map[string]model.RequesterProfile),
		requests:          make(map[string]model.Request),
		applications:      make(map[string]model.Application),
		seq:               make(map[string]int64),
	}
}

// Users はUserRepositoryを返す。
func (s *MemoryStore) Users() UserRepository { return memUsers{s} }

// DonorProfiles はDonorProfileRepositoryを返す。
func (s *MemoryStore) DonorProfiles() DonorProfileRepository { return memDonors{s} }

// RequesterProfiles はRequesterProfileRepositoryを返す。
func (s *MemoryStore) RequesterProfiles() RequesterProfileRepository { return memRequesters{s} }

// Requests はRequestRepositoryを返す。
func (s *MemoryStore) Requests() RequestRepository { return memRequests{s} }

// Applications はApplicationRepositoryを返す。
func (s *MemoryStore) Applications() ApplicationRepository { return memApplications{s} }

// PingContext は常に成功する。
func (s *MemoryStore) PingContext(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) stamp(id string) {
	s.nextSeq++
	s.seq[id] = s.nextSeq
}

// newerFirst は作成日時の降順、同時刻は後から挿入した行を先にする。
func (s *MemoryStore) newerFirst(aID string, aAt time.Time, bID string, bAt time.Time) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return s.seq[aID] > s.seq[bID]
}

func errNotFound(what, id string) error {
	return fmt.Errorf("%s not found: %s", what, id)
}

func foldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ---- users ----

type memUsers struct{ s *MemoryStore }

func (m memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if foldEqual(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m memUsers) Create(_ context.Context, user *model.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if foldEqual(u.Email, user.Email) {
			return ErrDuplicateEmail
		}
	}
	m.s.users[user.ID] = *user
	return nil
}

// ---- donor profiles ----

type memDonors struct{ s *MemoryStore }

func (m memDonors) FindByUserID(_ context.Context, userID string) (*model.DonorProfile, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.donorProfiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m memDonors) Create(_ context.Context, p *model.DonorProfile) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.donorProfiles[p.UserID]; ok {
		return ErrDuplicateProfile
	}
	m.s.donorProfiles[p.UserID] = *p
	return nil
}

func (m memDonors) Update(_ context.Context, p *model.DonorProfile) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.donorProfiles[p.UserID]; !ok {
		return errNotFound("donor profile", p.UserID)
	}
	m.s.donorProfiles[p.UserID] = *p
	return nil
}

func (m memDonors) UpdateLastDonationDate(_ context.Context, userID string, date time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.donorProfiles[userID]
	if !ok {
		return errNotFound("donor profile", userID)
	}
	p.LastDonationDate = &date
	p.UpdatedAt = time.Now().UTC()
	m.s.donorProfiles[userID] = p
	return nil
}

// ---- requester profiles ----

type memRequesters struct{ s *MemoryStore }

func (m memRequesters) FindByUserID(_ context.Context, userID string) (*model.RequesterProfile, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.requesterProfiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m memRequesters) Create(_ context.Context, p *model.RequesterProfile) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.requesterProfiles[p.UserID]; ok {
		return ErrDuplicateProfile
	}
	m.s.requesterProfiles[p.UserID] = *p
	return nil
}

func (m memRequesters) Update(_ context.Context, p *model.RequesterProfile) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.requesterProfiles[p.UserID]; !ok {
		return errNotFound("requester profile", p.UserID)
	}
	m.s.requesterProfiles[p.UserID] = *p
	return nil
}

// ---- requests ----

type memRequests struct{ s *MemoryStore }

func (m memRequests) FindByID(_ context.Context, id string) (*model.Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m memRequests) FindWithRequester(_ context.Context, id string) (*RequestWithRequester, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, nil
	}
	out := &RequestWithRequester{Request: r}
	if p, ok := m.s.requesterProfiles[r.RequesterID]; ok {
		out.Requester = model.RequesterContact{
			UserID:      p.UserID,
			Email:       m.s.users[p.UserID].Email,
			Name:        p.Name,
			Category:    p.Category,
			Phone:       p.Phone,
			City:        p.City,
			Country:     p.Country,
			AddressLine: p.AddressLine,
		}
	}
	return out, nil
}

func (m memRequests) ListOpenMatching(_ context.Context, bloodType model.BloodType, city, country string) ([]*model.Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*model.Request
	for _, r := range m.s.requests {
		if r.Status == model.RequestStatusOpen && r.BloodType == bloodType &&
			foldEqual(r.City, city) && foldEqual(r.Country, country) {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.s.newerFirst(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	return out, nil
}

func (m memRequests) Create(_ context.Context, req *model.Request) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.requests[req.ID] = *req
	m.s.stamp(req.ID)
	return nil
}

// UpdateWithLock はストア全体のロックを保持したままmutateを実行する。
// mutateがエラーを返した場合は元の行を変更しない。
func (m memRequests) UpdateWithLock(_ context.Context, id string, mutate RequestMutator) (*model.Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	current, ok := m.s.requests[id]
	if !ok {
		return nil, nil
	}
	working := current
	if err := mutate(&working); err != nil {
		return nil, err
	}
	m.s.requests[id] = working
	return &working, nil
}

func (m memRequests) ListByRequesterWithCounts(_ context.Context, requesterID string, limit int) ([]RequestWithApplicantCount, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range m.s.applications {
		counts[a.RequestID]++
	}
	var out []RequestWithApplicantCount
	for _, r := range m.s.requests {
		if r.RequesterID == requesterID {
			out = append(out, RequestWithApplicantCount{Request: r, ApplicantCount: counts[r.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.s.newerFirst(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memRequests) CountByStatus(_ context.Context, requesterID string) (map[model.RequestStatus]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	counts := map[model.RequestStatus]int{
		model.RequestStatusOpen:      0,
		model.RequestStatusResolved:  0,
		model.RequestStatusCancelled: 0,
	}
	for _, r := range m.s.requests {
		if r.RequesterID == requesterID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

// ---- applications ----

type memApplications struct{ s *MemoryStore }

func (m memApplications) FindByID(_ context.Context, id string) (*model.Application, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.applications[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m memApplications) FindActive(_ context.Context, requestID, donorID string) (*model.Application, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.findActiveLocked(requestID, donorID), nil
}

func (m memApplications) findActiveLocked(requestID, donorID string) *model.Application {
	for _, a := range m.s.applications {
		if a.RequestID == requestID && a.DonorID == donorID && a.Status == model.ApplicationStatusApplied {
			a := a
			return &a
		}
	}
	return nil
}

func (m memApplications) FindLatest(_ context.Context, requestID, donorID string) (*model.Application, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var latest *model.Application
	for _, a := range m.s.applications {
		if a.RequestID != requestID || a.DonorID != donorID {
			continue
		}
		if latest == nil || m.s.newerFirst(a.ID, a.CreatedAt, latest.ID, latest.CreatedAt) {
			a := a
			latest = &a
		}
	}
	return latest, nil
}

// Create は重複確認と挿入を同一のロック内で行う。
func (m memApplications) Create(_ context.Context, app *model.Application) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if app.Status == model.ApplicationStatusApplied && m.findActiveLocked(app.RequestID, app.DonorID) != nil {
		return ErrDuplicateActiveApplication
	}
	m.s.applications[app.ID] = *app
	m.s.stamp(app.ID)
	return nil
}

func (m memApplications) Withdraw(_ context.Context, id string, at time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.applications[id]
	if !ok || a.Status != model.ApplicationStatusApplied {
		return false, nil
	}
	a.Status = model.ApplicationStatusWithdrawn
	a.UpdatedAt = at
	m.s.applications[id] = a
	return true, nil
}

func (m memApplications) CountByDonor(_ context.Context, donorID string, status model.ApplicationStatus) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, a := range m.s.applications {
		if a.DonorID == donorID && a.Status == status {
			n++
		}
	}
	return n, nil
}

func (m memApplications) ListByDonorWithRequest(_ context.Context, donorID string, limit int) ([]ApplicationWithRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []ApplicationWithRequest
	for _, a := range m.s.applications {
		if a.DonorID != donorID {
			continue
		}
		r, ok := m.s.requests[a.RequestID]
		if !ok {
			continue
		}
		out = append(out, ApplicationWithRequest{Application: a, Request: r})
	}
	sort.Slice(out, func(i, j int) bool {
		return m.s.newerFirst(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memApplications) applicantLocked(a model.Application) (ApplicationWithDonor, bool) {
	d, ok := m.s.donorProfiles[a.DonorID]
	if !ok {
		return ApplicationWithDonor{}, false
	}
	r := m.s.requests[a.RequestID]
	return ApplicationWithDonor{
		Application: a,
		Donor: model.DonorContact{
			UserID:           d.UserID,
			Email:            m.s.users[d.UserID].Email,
			Name:             d.Name,
			Phone:            d.Phone,
			BloodType:        d.BloodType,
			City:             d.City,
			Country:          d.Country,
			LastDonationDate: d.LastDonationDate,
			PhotoURL:         d.PhotoURL,
		},
		RequestBloodType: r.BloodType,
		RequestUrgency:   r.Urgency,
		RequestCity:      r.City,
	}, true
}

func (m memApplications) listApplicantsLocked(keep func(a model.Application) bool, limit int) []ApplicationWithDonor {
	var out []ApplicationWithDonor
	for _, a := range m.s.applications {
		if !keep(a) {
			continue
		}
		if aw, ok := m.applicantLocked(a); ok {
			out = append(out, aw)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.s.newerFirst(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m memApplications) ListByRequestWithDonor(_ context.Context, requestID string) ([]ApplicationWithDonor, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.listApplicantsLocked(func(a model.Application) bool {
		return a.RequestID == requestID
	}, 0), nil
}

func (m memApplications) ListRecentByRequester(_ context.Context, requesterID string, limit int) ([]ApplicationWithDonor, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.listApplicantsLocked(func(a model.Application) bool {
		return m.s.requests[a.RequestID].RequesterID == requesterID
	}, limit), nil
}

func (m memApplications) CountByRequest(_ context.Context, requestID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, a := range m.s.applications {
		if a.RequestID == requestID {
			n++
		}
	}
	return n, nil
}

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/donormatch/internal/model"
)

func seedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Users().Create(ctx, &model.User{ID: "q", Email: "clinic@example.com", Role: model.RoleRequester, CreatedAt: now}))
	require.NoError(t, s.Users().Create(ctx, &model.User{ID: "d", Email: "donor@example.com", Role: model.RoleDonor, CreatedAt: now}))
	require.NoError(t, s.RequesterProfiles().Create(ctx, &model.RequesterProfile{
		UserID: "q", Name: "Clinic", Category: model.RequesterCategoryHospital, Phone: "999", City: "Cairo", Country: "Egypt",
	}))
	require.NoError(t, s.DonorProfiles().Create(ctx, &model.DonorProfile{
		UserID: "d", Name: "Donor", Phone: "111", BloodType: model.BloodTypeOPos, City: "Cairo", Country: "Egypt",
	}))
	require.NoError(t, s.Requests().Create(ctx, &model.Request{
		ID: "r1", RequesterID: "q", BloodType: model.BloodTypeOPos, UnitsNeeded: 2, Urgency: model.UrgencyHigh,
		CaseDescription: "x", Status: model.RequestStatusOpen, City: "Cairo", Country: "Egypt", CreatedAt: now,
	}))
	return s
}

func applied(id string) *model.Application {
	now := time.Now()
	return &model.Application{ID: id, RequestID: "r1", DonorID: "d", Status: model.ApplicationStatusApplied, CreatedAt: now, UpdatedAt: now}
}

func TestMemoryStore_PingContext(t *testing.T) {
	var pinger interface{ PingContext(context.Context) error } = NewMemoryStore()
	assert.NoError(t, pinger.PingContext(context.Background()))
}

func TestMemoryStore_Users_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	s := seedMemoryStore(t)
	err := s.Users().Create(context.Background(), &model.User{ID: "x", Email: "DONOR@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	u, err := s.Users().FindByEmail(context.Background(), " Donor@Example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "d", u.ID)
}

func TestMemoryStore_Profiles_CreateOnce(t *testing.T) {
	s := seedMemoryStore(t)
	err := s.DonorProfiles().Create(context.Background(), &model.DonorProfile{UserID: "d"})
	assert.ErrorIs(t, err, ErrDuplicateProfile)
	err = s.RequesterProfiles().Create(context.Background(), &model.RequesterProfile{UserID: "q"})
	assert.ErrorIs(t, err, ErrDuplicateProfile)
}

func TestMemoryStore_Applications_OneActivePerPair(t *testing.T) {
	s := seedMemoryStore(t)
	ctx := context.Background()
	apps := s.Applications()

	require.NoError(t, apps.Create(ctx, applied("a1")))
	assert.ErrorIs(t, apps.Create(ctx, applied("a2")), ErrDuplicateActiveApplication)

	ok, err := apps.Withdraw(ctx, "a1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = apps.Withdraw(ctx, "a1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second withdraw must not succeed")

	require.NoError(t, apps.Create(ctx, applied("a3")))

	latest, err := apps.FindLatest(ctx, "r1", "d")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "a3", latest.ID)

	n, err := apps.CountByRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_Applications_ConcurrentCreate(t *testing.T) {
	s := seedMemoryStore(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Applications().Create(ctx, applied(string(rune('A'+i))))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateActiveApplication):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	n, err := s.Applications().CountByDonor(ctx, "d", model.ApplicationStatusApplied)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_Requests_UpdateWithLock_ErrorLeavesRowUntouched(t *testing.T) {
	s := seedMemoryStore(t)
	ctx := context.Background()

	_, err := s.Requests().UpdateWithLock(ctx, "r1", func(r *model.Request) error {
		r.UnitsNeeded = 9
		return errors.New("rejected")
	})
	require.Error(t, err)

	r, err := s.Requests().FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.UnitsNeeded)

	missing, err := s.Requests().UpdateWithLock(ctx, "nope", func(r *model.Request) error { return nil })
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_Requests_ListOpenMatching(t *testing.T) {
	s := seedMemoryStore(t)
	ctx := context.Background()

	got, err := s.Requests().ListOpenMatching(ctx, model.BloodTypeOPos, "cairo ", "EGYPT")
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = s.Requests().UpdateWithLock(ctx, "r1", func(r *model.Request) error {
		r.Status = model.RequestStatusResolved
		return nil
	})
	require.NoError(t, err)

	got, err = s.Requests().ListOpenMatching(ctx, model.BloodTypeOPos, "Cairo", "Egypt")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_JoinsContacts(t *testing.T) {
	s := seedMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, s.Applications().Create(ctx, applied("a1")))

	rw, err := s.Requests().FindWithRequester(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rw)
	assert.Equal(t, "clinic@example.com", rw.Requester.Email)
	assert.Equal(t, "999", rw.Requester.Phone)

	applicants, err := s.Applications().ListByRequestWithDonor(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, applicants, 1)
	assert.Equal(t, "donor@example.com", applicants[0].Donor.Email)
	assert.Equal(t, model.UrgencyHigh, applicants[0].RequestUrgency)

	recent, err := s.Applications().ListRecentByRequester(ctx, "q", 15)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	counts, err := s.Requests().CountByStatus(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.RequestStatusOpen])
	assert.Equal(t, 0, counts[model.RequestStatusCancelled])

	withCounts, err := s.Requests().ListByRequesterWithCounts(ctx, "q", 0)
	require.NoError(t, err)
	require.Len(t, withCounts, 1)
	assert.Equal(t, 1, withCounts[0].ApplicantCount)
}

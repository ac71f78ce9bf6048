package dashboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/donormatch/internal/eligibility"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
)

var (
	fixedNow  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	donor     = model.Principal{UserID: "donor-1", Role: model.RoleDonor}
	requester = model.Principal{UserID: "requester-1", Role: model.RoleRequester}
)

func seed(t *testing.T, lastDonation *time.Time, requests int) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	require.NoError(t, store.Users().Create(ctx, &model.User{ID: requester.UserID, Email: "q@example.com", Role: model.RoleRequester}))
	require.NoError(t, store.Users().Create(ctx, &model.User{ID: donor.UserID, Email: "d@example.com", Role: model.RoleDonor}))
	require.NoError(t, store.RequesterProfiles().Create(ctx, &model.RequesterProfile{
		UserID: requester.UserID, Name: "Clinic", Category: model.RequesterCategoryHospital, City: "Cairo", Country: "Egypt",
	}))
	require.NoError(t, store.DonorProfiles().Create(ctx, &model.DonorProfile{
		UserID: donor.UserID, Name: "D", BloodType: model.BloodTypeBPos, City: "Cairo", Country: "Egypt",
		LastDonationDate: lastDonation,
	}))

	for i := 0; i < requests; i++ {
		status := model.RequestStatusOpen
		if i%5 == 4 {
			status = model.RequestStatusResolved
		}
		require.NoError(t, store.Requests().Create(ctx, &model.Request{
			ID: fmt.Sprintf("req-%02d", i), RequesterID: requester.UserID, BloodType: model.BloodTypeBPos,
			UnitsNeeded: 1, Urgency: model.UrgencyNormal, Status: status, City: "Cairo", Country: "Egypt",
			CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		}))
	}
	return store
}

func apply(t *testing.T, store *repository.MemoryStore, id, requestID string, status model.ApplicationStatus, at time.Time) {
	t.Helper()
	require.NoError(t, store.Applications().Create(context.Background(), &model.Application{
		ID: id, RequestID: requestID, DonorID: donor.UserID, Status: status, CreatedAt: at, UpdatedAt: at,
	}))
}

func newService(store *repository.MemoryStore) *Service {
	svc := NewService(store.DonorProfiles(), store.RequesterProfiles(), store.Requests(), store.Applications())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestService_Donor(t *testing.T) {
	last := fixedNow.AddDate(0, 0, -20)
	store := seed(t, &last, 10)
	apply(t, store, "a-1", "req-00", model.ApplicationStatusWithdrawn, fixedNow)
	apply(t, store, "a-2", "req-01", model.ApplicationStatusApplied, fixedNow.Add(time.Second))

	got, err := newService(store).Donor(context.Background(), donor)
	require.NoError(t, err)

	assert.Equal(t, 8, got.Stats.MatchingRequests, "resolved requests are not matches")
	assert.Equal(t, 1, got.Stats.ApplicationsApplied)
	assert.Equal(t, 1, got.Stats.ApplicationsWithdrawn)
	assert.Equal(t, eligibility.StatusCoolingDown, got.Stats.Eligibility.Status)
	assert.Equal(t, 34, got.Stats.Eligibility.DaysRemaining)

	require.Len(t, got.Recommended, RecommendedLimit)
	assert.Equal(t, "req-08", got.Recommended[0].ID, "newest first")
	require.Len(t, got.RecentApplications, 2)
	assert.Equal(t, "a-2", got.RecentApplications[0].ID)
}

func TestService_Donor_UnknownEligibility(t *testing.T) {
	store := seed(t, nil, 0)

	got, err := newService(store).Donor(context.Background(), donor)
	require.NoError(t, err)
	assert.Equal(t, eligibility.StatusUnknown, got.Stats.Eligibility.Status)
	assert.Nil(t, got.Stats.LastDonationDate)
	assert.Empty(t, got.Recommended)
}

func TestService_Requester(t *testing.T) {
	store := seed(t, nil, 25)
	// req-00 は直近20件の外、req-24 は内側
	apply(t, store, "a-1", "req-00", model.ApplicationStatusApplied, fixedNow)
	apply(t, store, "a-2", "req-24", model.ApplicationStatusApplied, fixedNow.Add(time.Second))
	apply(t, store, "a-3", "req-23", model.ApplicationStatusWithdrawn, fixedNow.Add(2*time.Second))

	got, err := newService(store).Requester(context.Background(), requester)
	require.NoError(t, err)

	assert.Equal(t, 20, got.Stats.OpenRequests)
	assert.Equal(t, 5, got.Stats.ResolvedRequests)
	assert.Equal(t, 0, got.Stats.CancelledRequests)
	assert.Equal(t, 2, got.Stats.TotalApplicants, "only the 20 newest requests are summed")
	assert.Equal(t, 3, got.Stats.RecentActivity)

	require.Len(t, got.RecentRequests, RecentRequestsLimit)
	assert.Equal(t, "req-24", got.RecentRequests[0].ID)
	assert.Equal(t, 1, got.RecentRequests[0].ApplicantCount)
	require.Len(t, got.RecentApplicants, 3)
	assert.Equal(t, "a-3", got.RecentApplicants[0].ID)
	assert.Equal(t, "d@example.com", got.RecentApplicants[0].Donor.Email)
}

func TestService_RoleAndProfileChecks(t *testing.T) {
	store := seed(t, nil, 0)
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.Donor(ctx, requester)
	assert.True(t, model.HasCategory(err, model.CategoryAuthorization), "got %v", err)

	_, err = svc.Requester(ctx, donor)
	assert.True(t, model.HasCategory(err, model.CategoryAuthorization), "got %v", err)

	_, err = svc.Requester(ctx, model.Principal{UserID: "nobody", Role: model.RoleRequester})
	assert.True(t, model.HasCode(err, model.ErrCodeProfileNotFound), "got %v", err)
}

package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
)

var (
	donor     = model.Principal{UserID: "donor-1", Role: model.RoleDonor}
	requester = model.Principal{UserID: "requester-1", Role: model.RoleRequester}
)

func str(s string) *string { return &s }

func newStoreService(t *testing.T) (*Service, *repository.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Users().Create(ctx, &model.User{ID: donor.UserID, Email: "d@example.com", Role: model.RoleDonor}))
	require.NoError(t, store.Users().Create(ctx, &model.User{ID: requester.UserID, Email: "q@example.com", Role: model.RoleRequester}))
	return NewService(store.Users(), store.DonorProfiles(), store.RequesterProfiles(), nil), store
}

func donorInput() Input {
	return Input{
		Name:             str("Donor"),
		Phone:            str("+20-200"),
		BloodType:        str("o+"),
		City:             str("Cairo"),
		Country:          str("Egypt"),
		LastDonationDate: str("2025-01-15"),
		PhotoURL:         str("https://cdn.example.com/p.jpg"),
	}
}

func TestService_Create_DonorOnce(t *testing.T) {
	svc, _ := newStoreService(t)
	ctx := context.Background()

	me, err := svc.Create(ctx, donor, donorInput())
	require.NoError(t, err)
	require.NotNil(t, me.Donor)
	assert.Nil(t, me.Requester)
	assert.Equal(t, model.BloodTypeOPos, me.Donor.BloodType)
	require.NotNil(t, me.Donor.LastDonationDate)
	assert.Equal(t, "2025-01-15", me.Donor.LastDonationDate.Format(time.DateOnly))

	_, err = svc.Create(ctx, donor, donorInput())
	require.Error(t, err)
	assert.True(t, model.HasCode(err, model.ErrCodeProfileExists))
	assert.Equal(t, "Donor profile already exists", err.(*model.APIError).Message)
}

func TestService_Create_RequesterOnce(t *testing.T) {
	svc, _ := newStoreService(t)
	ctx := context.Background()
	in := Input{Name: str("General Hospital"), Category: str("Hospital"), Phone: str("+20-100"), City: str("Cairo"), Country: str("Egypt")}

	me, err := svc.Create(ctx, requester, in)
	require.NoError(t, err)
	require.NotNil(t, me.Requester)
	assert.Equal(t, model.RequesterCategoryHospital, me.Requester.Category)

	_, err = svc.Create(ctx, requester, in)
	assert.Equal(t, "Requester profile already exists", err.(*model.APIError).Message)
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		code   string
	}{
		{"missing name", func(in *Input) { in.Name = nil }, model.ErrCodeValidation},
		{"blank phone", func(in *Input) { in.Phone = str("  ") }, model.ErrCodeValidation},
		{"bad blood type", func(in *Input) { in.BloodType = str("Z") }, model.ErrCodeValidation},
		{"bad date", func(in *Input) { in.LastDonationDate = str("15/01/2025") }, model.ErrCodeInvalidDate},
		{"http photo", func(in *Input) { in.PhotoURL = str("http://cdn.example.com/p.jpg") }, model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newStoreService(t)
			in := donorInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), donor, in)
			assert.True(t, model.HasCode(err, tt.code), "got %v", err)

			prof, err := store.DonorProfiles().FindByUserID(context.Background(), donor.UserID)
			require.NoError(t, err)
			assert.Nil(t, prof, "nothing is persisted on validation failure")
		})
	}
}

func TestService_Update_Partial(t *testing.T) {
	svc, _ := newStoreService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, donor, Input{City: str("Giza")})
	assert.True(t, model.HasCode(err, model.ErrCodeProfileNotFound), "got %v", err)

	_, err = svc.Create(ctx, donor, donorInput())
	require.NoError(t, err)

	me, err := svc.Update(ctx, donor, Input{City: str("<i>Giza</i>")})
	require.NoError(t, err)
	assert.Equal(t, "Giza", me.Donor.City)
	assert.Equal(t, "Donor", me.Donor.Name, "unspecified fields keep their values")

	_, err = svc.Update(ctx, donor, Input{Name: str("")})
	assert.True(t, model.HasCategory(err, model.CategoryValidation), "required fields cannot be cleared")

	got, err := svc.Get(ctx, donor)
	require.NoError(t, err)
	assert.Equal(t, "Giza", got.Donor.City)
	assert.Equal(t, "d@example.com", got.User.Email)
}

func TestService_SetLastDonationDate(t *testing.T) {
	svc, store := newStoreService(t)
	ctx := context.Background()

	_, err := svc.SetLastDonationDate(ctx, requester, "2025-01-01")
	assert.True(t, model.HasCategory(err, model.CategoryAuthorization), "got %v", err)

	_, err = svc.SetLastDonationDate(ctx, donor, "2025-01-01")
	assert.True(t, model.HasCode(err, model.ErrCodeProfileNotFound), "got %v", err)

	_, err = svc.Create(ctx, donor, donorInput())
	require.NoError(t, err)

	_, err = svc.SetLastDonationDate(ctx, donor, "")
	assert.True(t, model.HasCode(err, model.ErrCodeValidation), "got %v", err)

	_, err = svc.SetLastDonationDate(ctx, donor, "yesterday")
	assert.True(t, model.HasCode(err, model.ErrCodeInvalidDate), "got %v", err)

	date, err := svc.SetLastDonationDate(ctx, donor, "2025-03-10T08:00:00Z")
	require.NoError(t, err)

	prof, err := store.DonorProfiles().FindByUserID(ctx, donor.UserID)
	require.NoError(t, err)
	require.NotNil(t, prof.LastDonationDate)
	assert.True(t, prof.LastDonationDate.Equal(date))
}

func TestService_Get_UnknownUser(t *testing.T) {
	svc, _ := newStoreService(t)

	_, err := svc.Get(context.Background(), model.Principal{UserID: "ghost", Role: model.RoleDonor})
	assert.True(t, model.HasCode(err, model.ErrCodeUserNotFound), "got %v", err)
}

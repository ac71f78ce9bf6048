// Package profile はユーザープロフィールのドメインロジックを提供する。
// プロフィールはロールごとに1件だけ作成でき、以後は部分更新のみ可能。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/donormatch/internal/eligibility"
	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
	"github.com/hitoshi/donormatch/internal/security"
)

// Me はユーザーと、そのロールのプロフィール（未作成ならnil）の組。
type Me struct {
	User      model.User
	Donor     *model.DonorProfile
	Requester *model.RequesterProfile
}

// Input はプロフィールの作成・更新の入力。nilのフィールドは未指定を表す。
// ロールに関係しないフィールドは無視する。
type Input struct {
	Name             *string
	Phone            *string
	City             *string
	Country          *string
	AddressLine      *string
	BloodType        *string
	LastDonationDate *string
	PhotoURL         *string
	Category         *string
}

// Service はプロフィール管理のサービス層。
type Service struct {
	userRepo      repository.UserRepository
	donorRepo     repository.DonorProfileRepository
	requesterRepo repository.RequesterProfileRepository
	sanitizer     security.TextSanitizerService
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	donorRepo repository.DonorProfileRepository,
	requesterRepo repository.RequesterProfileRepository,
	sanitizer security.TextSanitizerService,
) *Service {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Service{
		userRepo:      userRepo,
		donorRepo:     donorRepo,
		requesterRepo: requesterRepo,
		sanitizer:     sanitizer,
		now:           time.Now,
	}
}

func invalid(message string) error {
	return model.NewValidationError(model.ErrCodeValidation, message)
}

func (s *Service) loadUser(ctx context.Context, p model.Principal) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Get はユーザーとそのプロフィールを返す。
func (s *Service) Get(ctx context.Context, p model.Principal) (*Me, error) {
	user, err := s.loadUser(ctx, p)
	if err != nil {
		return nil, err
	}
	me := &Me{User: *user}

	switch user.Role {
	case model.RoleDonor:
		me.Donor, err = s.donorRepo.FindByUserID(ctx, user.ID)
	case model.RoleRequester:
		me.Requester, err = s.requesterRepo.FindByUserID(ctx, user.ID)
	default:
		return nil, invalid("Invalid user role")
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return me, nil
}

// Create はロールに応じたプロフィールを作成する。2回目の作成はエラーとする。
func (s *Service) Create(ctx context.Context, p model.Principal, in Input) (*Me, error) {
	user, err := s.loadUser(ctx, p)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch user.Role {
	case model.RoleDonor:
		existing, err := s.donorRepo.FindByUserID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("献血者プロフィールの取得に失敗しました: %w", err)
		}
		if existing != nil {
			return nil, model.NewProfileExistsError("Donor")
		}
		prof := &model.DonorProfile{UserID: user.ID, CreatedAt: now, UpdatedAt: now}
		if err := s.applyDonor(prof, in, true); err != nil {
			return nil, err
		}
		if err := s.donorRepo.Create(ctx, prof); err != nil {
			if errors.Is(err, repository.ErrDuplicateProfile) {
				return nil, model.NewProfileExistsError("Donor")
			}
			return nil, fmt.Errorf("献血者プロフィールの作成に失敗しました: %w", err)
		}
		slog.Info("profile created", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
		return &Me{User: *user, Donor: prof}, nil

	case model.RoleRequester:
		existing, err := s.requesterRepo.FindByUserID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("依頼者プロフィールの取得に失敗しました: %w", err)
		}
		if existing != nil {
			return nil, model.NewProfileExistsError("Requester")
		}
		prof := &model.RequesterProfile{UserID: user.ID, CreatedAt: now, UpdatedAt: now}
		if err := s.applyRequester(prof, in, true); err != nil {
			return nil, err
		}
		if err := s.requesterRepo.Create(ctx, prof); err != nil {
			if errors.Is(err, repository.ErrDuplicateProfile) {
				return nil, model.NewProfileExistsError("Requester")
			}
			return nil, fmt.Errorf("依頼者プロフィールの作成に失敗しました: %w", err)
		}
		slog.Info("profile created", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
		return &Me{User: *user, Requester: prof}, nil

	default:
		return nil, invalid("Invalid user role")
	}
}

// Update はロールのプロフィールを部分更新する。
func (s *Service) Update(ctx context.Context, p model.Principal, in Input) (*Me, error) {
	user, err := s.loadUser(ctx, p)
	if err != nil {
		return nil, err
	}

	switch user.Role {
	case model.RoleDonor:
		prof, err := s.donorRepo.FindByUserID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("献血者プロフィールの取得に失敗しました: %w", err)
		}
		if prof == nil {
			return nil, model.NewProfileNotFoundError("Donor")
		}
		if err := s.applyDonor(prof, in, false); err != nil {
			return nil, err
		}
		prof.UpdatedAt = s.now()
		if err := s.donorRepo.Update(ctx, prof); err != nil {
			return nil, fmt.Errorf("献血者プロフィールの更新に失敗しました: %w", err)
		}
		return &Me{User: *user, Donor: prof}, nil

	case model.RoleRequester:
		prof, err := s.requesterRepo.FindByUserID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("依頼者プロフィールの取得に失敗しました: %w", err)
		}
		if prof == nil {
			return nil, model.NewProfileNotFoundError("Requester")
		}
		if err := s.applyRequester(prof, in, false); err != nil {
			return nil, err
		}
		prof.UpdatedAt = s.now()
		if err := s.requesterRepo.Update(ctx, prof); err != nil {
			return nil, fmt.Errorf("依頼者プロフィールの更新に失敗しました: %w", err)
		}
		return &Me{User: *user, Requester: prof}, nil

	default:
		return nil, invalid("Invalid user role")
	}
}

// SetLastDonationDate は献血者の最終献血日を更新する。
// YYYY-MM-DD またはRFC 3339形式を受け付ける。
func (s *Service) SetLastDonationDate(ctx context.Context, p model.Principal, raw string) (time.Time, error) {
	if err := p.Require(model.RoleDonor, "update last donation date"); err != nil {
		return time.Time{}, err
	}
	prof, err := s.donorRepo.FindByUserID(ctx, p.UserID)
	if err != nil {
		return time.Time{}, fmt.Errorf("献血者プロフィールの取得に失敗しました: %w", err)
	}
	if prof == nil {
		return time.Time{}, model.NewProfileNotFoundError("Donor")
	}

	if strings.TrimSpace(raw) == "" {
		return time.Time{}, invalid("A valid 'date' string is required")
	}
	date, err := eligibility.ParseDate(raw)
	if err != nil {
		return time.Time{}, model.NewInvalidDateError()
	}

	if err := s.donorRepo.UpdateLastDonationDate(ctx, prof.UserID, date); err != nil {
		return time.Time{}, fmt.Errorf("最終献血日の更新に失敗しました: %w", err)
	}
	slog.Info("last donation date updated", slog.String("user_id", prof.UserID))
	return date, nil
}

// text は自由記述をサニタイズする。requiredの場合は空文字列をエラーにする。
func (s *Service) text(dst *string, v *string, field string, required bool) error {
	if v == nil {
		if required {
			return invalid(field + " is required")
		}
		return nil
	}
	cleaned := s.sanitizer.Sanitize(*v)
	if cleaned == "" && required {
		return invalid(field + " is required")
	}
	*dst = cleaned
	return nil
}

// applyDonor はinputを献血者プロフィールに適用する。
// creatingがtrueの場合は必須フィールドの指定を要求する。
// 更新時も必須フィールドを空にすることはできない。
func (s *Service) applyDonor(prof *model.DonorProfile, in Input, creating bool) error {
	required := func(v *string) bool { return creating || v != nil }

	if err := s.text(&prof.Name, in.Name, "name", required(in.Name)); err != nil {
		return err
	}
	if err := s.text(&prof.Phone, in.Phone, "phone", required(in.Phone)); err != nil {
		return err
	}
	if in.BloodType != nil || creating {
		if in.BloodType == nil {
			return invalid("Invalid or missing blood_type")
		}
		bt := model.NormalizeBloodType(*in.BloodType)
		if !bt.Valid() {
			return invalid("Invalid or missing blood_type")
		}
		prof.BloodType = bt
	}
	if err := s.text(&prof.City, in.City, "city", required(in.City)); err != nil {
		return err
	}
	if err := s.text(&prof.Country, in.Country, "country", required(in.Country)); err != nil {
		return err
	}
	if err := s.text(&prof.AddressLine, in.AddressLine, "address_line", false); err != nil {
		return err
	}
	if in.LastDonationDate != nil {
		if strings.TrimSpace(*in.LastDonationDate) == "" {
			prof.LastDonationDate = nil
		} else {
			date, err := eligibility.ParseDate(*in.LastDonationDate)
			if err != nil {
				return model.NewInvalidDateError()
			}
			prof.LastDonationDate = &date
		}
	}
	if in.PhotoURL != nil {
		if err := security.ValidatePhotoURL(*in.PhotoURL); err != nil {
			return invalid("photo_url must be an absolute https URL")
		}
		prof.PhotoURL = strings.TrimSpace(*in.PhotoURL)
	}
	return nil
}

// applyRequester はinputを依頼者プロフィールに適用する。
func (s *Service) applyRequester(prof *model.RequesterProfile, in Input, creating bool) error {
	required := func(v *string) bool { return creating || v != nil }

	if err := s.text(&prof.Name, in.Name, "name", required(in.Name)); err != nil {
		return err
	}
	if in.Category != nil || creating {
		if in.Category == nil {
			return invalid("category must be 'Hospital' or 'Patient'")
		}
		cat := model.RequesterCategory(strings.TrimSpace(*in.Category))
		if !cat.Valid() {
			return invalid("category must be 'Hospital' or 'Patient'")
		}
		prof.Category = cat
	}
	if err := s.text(&prof.Phone, in.Phone, "phone", required(in.Phone)); err != nil {
		return err
	}
	if err := s.text(&prof.City, in.City, "city", required(in.City)); err != nil {
		return err
	}
	if err := s.text(&prof.Country, in.Country, "country", required(in.Country)); err != nil {
		return err
	}
	return s.text(&prof.AddressLine, in.AddressLine, "address_line", false)
}

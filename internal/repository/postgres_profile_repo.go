package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/donormatch/internal/model"
)

// PostgresDonorProfileRepo はPostgreSQLを使用した献血者プロフィールリポジトリ。
type PostgresDonorProfileRepo struct {
	db *sql.DB
}

// NewPostgresDonorProfileRepo はPostgresDonorProfileRepoを生成する。
func NewPostgresDonorProfileRepo(db *sql.DB) *PostgresDonorProfileRepo {
	return &PostgresDonorProfileRepo{db: db}
}

const donorProfileColumns = `user_id, name, phone, blood_type, last_donation_date,
	city, country, address_line, photo_url, created_at, updated_at`

// FindByUserID は献血者プロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresDonorProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.DonorProfile, error) {
	p := &model.DonorProfile{}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT `+donorProfileColumns+` FROM donor_profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Name, &p.Phone, &p.BloodType, &last,
		&p.City, &p.Country, &p.AddressLine, &p.PhotoURL, &p.CreatedAt, &p.UpdatedAt)

	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("献血者プロフィールの取得に失敗しました: %w", err)
	}
	p.LastDonationDate = nullTimePtr(last)
	return p, nil
}

// Create は献血者プロフィールを作成する。
func (r *PostgresDonorProfileRepo) Create(ctx context.Context, p *model.DonorProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO donor_profiles (`+donorProfileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.UserID, p.Name, p.Phone, p.BloodType, p.LastDonationDate,
		p.City, p.Country, p.AddressLine, p.PhotoURL, p.CreatedAt, p.UpdatedAt,
	)
	if _, dup := uniqueViolation(err); dup {
		return ErrDuplicateProfile
	}
	if err != nil {
		return fmt.Errorf("献血者プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は献血者プロフィールを上書き更新する。
func (r *PostgresDonorProfileRepo) Update(ctx context.Context, p *model.DonorProfile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE donor_profiles
		 SET name = $2, phone = $3, blood_type = $4, last_donation_date = $5,
		     city = $6, country = $7, address_line = $8, photo_url = $9, updated_at = $10
		 WHERE user_id = $1`,
		p.UserID, p.Name, p.Phone, p.BloodType, p.LastDonationDate,
		p.City, p.Country, p.AddressLine, p.PhotoURL, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("献血者プロフィールの更新に失敗しました: %w", err)
	}
	return requireOneRow(result, "献血者プロフィール", p.UserID)
}

// UpdateLastDonationDate は最終献血日のみを更新する。
func (r *PostgresDonorProfileRepo) UpdateLastDonationDate(ctx context.Context, userID string, date time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE donor_profiles SET last_donation_date = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, date,
	)
	if err != nil {
		return fmt.Errorf("最終献血日の更新に失敗しました: %w", err)
	}
	return requireOneRow(result, "献血者プロフィール", userID)
}

// PostgresRequesterProfileRepo はPostgreSQLを使用した依頼者プロフィールリポジトリ。
type PostgresRequesterProfileRepo struct {
	db *sql.DB
}

// NewPostgresRequesterProfileRepo はPostgresRequesterProfileRepoを生成する。
func NewPostgresRequesterProfileRepo(db *sql.DB) *PostgresRequesterProfileRepo {
	return &PostgresRequesterProfileRepo{db: db}
}

// FindByUserID は依頼者プロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresRequesterProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.RequesterProfile, error) {
	p := &model.RequesterProfile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, category, phone, city, country, address_line, created_at, updated_at
		 FROM requester_profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Name, &p.Category, &p.Phone, &p.City, &p.Country, &p.AddressLine, &p.CreatedAt, &p.UpdatedAt)

	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("依頼者プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は依頼者プロフィールを作成する。
func (r *PostgresRequesterProfileRepo) Create(ctx context.Context, p *model.RequesterProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requester_profiles (user_id, name, category, phone, city, country, address_line, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.UserID, p.Name, p.Category, p.Phone, p.City, p.Country, p.AddressLine, p.CreatedAt, p.UpdatedAt,
	)
	if _, dup := uniqueViolation(err); dup {
		return ErrDuplicateProfile
	}
	if err != nil {
		return fmt.Errorf("依頼者プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は依頼者プロフィールを上書き更新する。
func (r *PostgresRequesterProfileRepo) Update(ctx context.Context, p *model.RequesterProfile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE requester_profiles
		 SET name = $2, category = $3, phone = $4, city = $5, country = $6, address_line = $7, updated_at = $8
		 WHERE user_id = $1`,
		p.UserID, p.Name, p.Category, p.Phone, p.City, p.Country, p.AddressLine, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("依頼者プロフィールの更新に失敗しました: %w", err)
	}
	return requireOneRow(result, "依頼者プロフィール", p.UserID)
}

// requireOneRow は更新件数が0件の場合にエラーを返す。
func requireOneRow(result sql.Result, what, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%sが見つかりません: %s", what, id)
	}
	return nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

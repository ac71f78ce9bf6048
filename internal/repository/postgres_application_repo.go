package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/donormatch/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `a.id, a.request_id, a.donor_id, a.status, a.created_at, a.updated_at`

func applicationScanTargets(app *model.Application) []any {
	return []any{&app.ID, &app.RequestID, &app.DonorID, &app.Status, &app.CreatedAt, &app.UpdatedAt}
}

func (r *PostgresApplicationRepo) findOne(ctx context.Context, query string, args ...any) (*model.Application, error) {
	app := &model.Application{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(applicationScanTargets(app)...)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	app, err := r.findOne(ctx,
		`SELECT `+applicationColumns+` FROM applications a WHERE a.id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	return app, nil
}

// FindActive は(依頼, 献血者)のApplied状態の応募を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindActive(ctx context.Context, requestID, donorID string) (*model.Application, error) {
	app, err := r.findOne(ctx,
		`SELECT `+applicationColumns+` FROM applications a
		 WHERE a.request_id = $1 AND a.donor_id = $2 AND a.status = 'Applied'`,
		requestID, donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("有効な応募の検索に失敗しました: %w", err)
	}
	return app, nil
}

// FindLatest は(依頼, 献血者)の最新の応募を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindLatest(ctx context.Context, requestID, donorID string) (*model.Application, error) {
	app, err := r.findOne(ctx,
		`SELECT `+applicationColumns+` FROM applications a
		 WHERE a.request_id = $1 AND a.donor_id = $2
		 ORDER BY a.created_at DESC, a.id DESC
		 LIMIT 1`,
		requestID, donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("最新の応募の検索に失敗しました: %w", err)
	}
	return app, nil
}

// Create は応募を作成する。
// applications_one_active 部分一意インデックスに違反した場合はErrDuplicateActiveApplicationを返す。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, request_id, donor_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		app.ID, app.RequestID, app.DonorID, app.Status, app.CreatedAt, app.UpdatedAt,
	)
	if constraint, dup := uniqueViolation(err); dup && constraint == constraintOneActiveApplication {
		return ErrDuplicateActiveApplication
	}
	if err != nil {
		return fmt.Errorf("応募の作成に失敗しました: %w", err)
	}
	return nil
}

// Withdraw はApplied状態の応募をWithdrawnに更新する。
// 状態の確認と更新を1文で行うため、同時に取り下げても更新は1回だけ成功する。
func (r *PostgresApplicationRepo) Withdraw(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = 'Withdrawn', updated_at = $2
		 WHERE id = $1 AND status = 'Applied'`,
		id, at,
	)
	if invalidUUID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("応募の取り下げに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// CountByDonor は献血者の指定状態の応募数を返す。
func (r *PostgresApplicationRepo) CountByDonor(ctx context.Context, donorID string, status model.ApplicationStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE donor_id = $1 AND status = $2`,
		donorID, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("応募数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListByDonorWithRequest は献血者の応募を依頼情報付きで新しい順に返す。
func (r *PostgresApplicationRepo) ListByDonorWithRequest(ctx context.Context, donorID string, limit int) ([]ApplicationWithRequest, error) {
	query := `SELECT ` + applicationColumns + `, ` + requestColumns + `
	          FROM applications a
	          JOIN requests r ON r.id = a.request_id
	          WHERE a.donor_id = $1
	          ORDER BY a.created_at DESC, a.id DESC`
	args := []any{donorID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("献血者の応募一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var out []ApplicationWithRequest
	for rows.Next() {
		var ar ApplicationWithRequest
		targets := append(applicationScanTargets(&ar.Application), requestScanTargets(&ar.Request)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("応募行の読み取りに失敗しました: %w", err)
		}
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("応募一覧の走査に失敗しました: %w", err)
	}
	return out, nil
}

const applicantSelect = `SELECT ` + applicationColumns + `,
	        d.user_id, u.email, d.name, d.phone, d.blood_type, d.city, d.country, d.last_donation_date, d.photo_url,
	        r.blood_type, r.urgency, r.city
	 FROM applications a
	 JOIN donor_profiles d ON d.user_id = a.donor_id
	 JOIN users u ON u.id = d.user_id
	 JOIN requests r ON r.id = a.request_id`

func (r *PostgresApplicationRepo) listApplicants(ctx context.Context, query string, args ...any) ([]ApplicationWithDonor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApplicationWithDonor
	for rows.Next() {
		var aw ApplicationWithDonor
		var last sql.NullTime
		d := &aw.Donor
		targets := append(applicationScanTargets(&aw.Application),
			&d.UserID, &d.Email, &d.Name, &d.Phone, &d.BloodType, &d.City, &d.Country, &last, &d.PhotoURL,
			&aw.RequestBloodType, &aw.RequestUrgency, &aw.RequestCity,
		)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		d.LastDonationDate = nullTimePtr(last)
		out = append(out, aw)
	}
	return out, rows.Err()
}

// ListByRequestWithDonor は依頼への応募を献血者の連絡先付きで新しい順に返す。
func (r *PostgresApplicationRepo) ListByRequestWithDonor(ctx context.Context, requestID string) ([]ApplicationWithDonor, error) {
	out, err := r.listApplicants(ctx,
		applicantSelect+` WHERE a.request_id = $1 ORDER BY a.created_at DESC, a.id DESC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("応募者一覧の取得に失敗しました: %w", err)
	}
	return out, nil
}

// ListRecentByRequester は依頼者の全依頼への応募を新しい順にlimit件返す。
func (r *PostgresApplicationRepo) ListRecentByRequester(ctx context.Context, requesterID string, limit int) ([]ApplicationWithDonor, error) {
	out, err := r.listApplicants(ctx,
		applicantSelect+` WHERE r.requester_id = $1 ORDER BY a.created_at DESC, a.id DESC LIMIT $2`,
		requesterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("最近の応募者の取得に失敗しました: %w", err)
	}
	return out, nil
}

// CountByRequest は依頼への応募数を状態を問わず返す。
func (r *PostgresApplicationRepo) CountByRequest(ctx context.Context, requestID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE request_id = $1`,
		requestID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("応募数の取得に失敗しました: %w", err)
	}
	return count, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/donormatch/internal/model"
)

// PostgresRequestRepo はPostgreSQLを使用した献血依頼リポジトリ。
type PostgresRequestRepo struct {
	db *sql.DB
}

// NewPostgresRequestRepo はPostgresRequestRepoを生成する。
func NewPostgresRequestRepo(db *sql.DB) *PostgresRequestRepo {
	return &PostgresRequestRepo{db: db}
}

const requestColumns = `r.id, r.requester_id, r.blood_type, r.units_needed, r.urgency,
	r.case_description, r.status, r.city, r.country, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func requestScanTargets(req *model.Request) []any {
	return []any{
		&req.ID, &req.RequesterID, &req.BloodType, &req.UnitsNeeded, &req.Urgency,
		&req.CaseDescription, &req.Status, &req.City, &req.Country, &req.CreatedAt, &req.UpdatedAt,
	}
}

func scanRequest(row rowScanner) (*model.Request, error) {
	req := &model.Request{}
	if err := row.Scan(requestScanTargets(req)...); err != nil {
		return nil, err
	}
	return req, nil
}

// FindByID は指定IDの依頼を取得する。見つからない場合はnilを返す。
func (r *PostgresRequestRepo) FindByID(ctx context.Context, id string) (*model.Request, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests r WHERE r.id = $1`,
		id,
	))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("依頼の取得に失敗しました: %w", err)
	}
	return req, nil
}

// FindWithRequester は依頼を依頼者の連絡先付きで取得する。見つからない場合はnilを返す。
func (r *PostgresRequestRepo) FindWithRequester(ctx context.Context, id string) (*RequestWithRequester, error) {
	out := &RequestWithRequester{}
	rq := &out.Requester
	targets := append(requestScanTargets(&out.Request),
		&rq.UserID, &rq.Email, &rq.Name, &rq.Category, &rq.Phone, &rq.City, &rq.Country, &rq.AddressLine,
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+`,
		        p.user_id, u.email, p.name, p.category, p.phone, p.city, p.country, p.address_line
		 FROM requests r
		 JOIN requester_profiles p ON p.user_id = r.requester_id
		 JOIN users u ON u.id = p.user_id
		 WHERE r.id = $1`,
		id,
	).Scan(targets...)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("依頼者付き依頼の取得に失敗しました: %w", err)
	}
	return out, nil
}

// ListOpenMatching はマッチ条件に一致するOpen状態の依頼を新しい順に返す。
func (r *PostgresRequestRepo) ListOpenMatching(ctx context.Context, bloodType model.BloodType, city, country string) ([]*model.Request, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+`
		 FROM requests r
		 WHERE r.status = 'Open' AND r.blood_type = $1
		   AND LOWER(r.city) = $2 AND LOWER(r.country) = $3
		 ORDER BY r.created_at DESC`,
		bloodType, strings.ToLower(strings.TrimSpace(city)), strings.ToLower(strings.TrimSpace(country)),
	)
	if err != nil {
		return nil, fmt.Errorf("マッチする依頼一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var out []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("依頼行の読み取りに失敗しました: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("依頼一覧の走査に失敗しました: %w", err)
	}
	return out, nil
}

// Create は依頼を作成する。
func (r *PostgresRequestRepo) Create(ctx context.Context, req *model.Request) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requests (id, requester_id, blood_type, units_needed, urgency,
		                       case_description, status, city, country, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		req.ID, req.RequesterID, req.BloodType, req.UnitsNeeded, req.Urgency,
		req.CaseDescription, req.Status, req.City, req.Country, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("依頼の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateWithLock は依頼をSELECT ... FOR UPDATEで読み出し、mutateを適用して保存する。
// mutateがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
func (r *PostgresRequestRepo) UpdateWithLock(ctx context.Context, id string, mutate RequestMutator) (*model.Request, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := scanRequest(tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests r WHERE r.id = $1 FOR UPDATE`,
		id,
	))
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("依頼のロック取得に失敗しました: %w", err)
	}

	if err := mutate(req); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE requests
		 SET units_needed = $2, urgency = $3, case_description = $4, status = $5, updated_at = $6
		 WHERE id = $1`,
		req.ID, req.UnitsNeeded, req.Urgency, req.CaseDescription, req.Status, req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("依頼の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return req, nil
}

// ListByRequesterWithCounts は依頼者の依頼を応募数付きで新しい順に返す。
func (r *PostgresRequestRepo) ListByRequesterWithCounts(ctx context.Context, requesterID string, limit int) ([]RequestWithApplicantCount, error) {
	query := `SELECT ` + requestColumns + `,
	                 (SELECT COUNT(*) FROM applications a WHERE a.request_id = r.id) AS applicant_count
	          FROM requests r
	          WHERE r.requester_id = $1
	          ORDER BY r.created_at DESC`
	args := []any{requesterID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("依頼者の依頼一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var out []RequestWithApplicantCount
	for rows.Next() {
		var rc RequestWithApplicantCount
		targets := append(requestScanTargets(&rc.Request), &rc.ApplicantCount)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("依頼行の読み取りに失敗しました: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("依頼一覧の走査に失敗しました: %w", err)
	}
	return out, nil
}

// CountByStatus は依頼者の依頼数を状態ごとに集計する。
// 該当の無い状態も0として含める。
func (r *PostgresRequestRepo) CountByStatus(ctx context.Context, requesterID string) (map[model.RequestStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM requests WHERE requester_id = $1 GROUP BY status`,
		requesterID,
	)
	if err != nil {
		return nil, fmt.Errorf("状態別の依頼数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := map[model.RequestStatus]int{
		model.RequestStatusOpen:      0,
		model.RequestStatusResolved:  0,
		model.RequestStatusCancelled: 0,
	}
	for rows.Next() {
		var status model.RequestStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("集計行の読み取りに失敗しました: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("集計結果の走査に失敗しました: %w", err)
	}
	return counts, nil
}

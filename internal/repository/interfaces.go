// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/donormatch/internal/model"
)

var (
	// ErrDuplicateActiveApplication は同一(依頼, 献血者)にApplied状態の応募が既に存在する場合に返る。
	ErrDuplicateActiveApplication = errors.New("active application already exists")
	// ErrDuplicateEmail はメールアドレスが既に登録済みの場合に返る。
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateProfile はプロフィールが既に作成済みの場合に返る。
	ErrDuplicateProfile = errors.New("profile already exists")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
}

// DonorProfileRepository は献血者プロフィールの永続化インターフェース。
type DonorProfileRepository interface {
	// FindByUserID は献血者プロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.DonorProfile, error)

	// Create はプロフィールを作成する。既に存在する場合はErrDuplicateProfileを返す。
	Create(ctx context.Context, profile *model.DonorProfile) error

	// Update はプロフィールを上書き更新する。
	Update(ctx context.Context, profile *model.DonorProfile) error

	// UpdateLastDonationDate は最終献血日のみを更新する。
	UpdateLastDonationDate(ctx context.Context, userID string, date time.Time) error
}

// RequesterProfileRepository は依頼者プロフィールの永続化インターフェース。
type RequesterProfileRepository interface {
	// FindByUserID は依頼者プロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.RequesterProfile, error)

	// Create はプロフィールを作成する。既に存在する場合はErrDuplicateProfileを返す。
	Create(ctx context.Context, profile *model.RequesterProfile) error

	// Update はプロフィールを上書き更新する。
	Update(ctx context.Context, profile *model.RequesterProfile) error
}

// RequestMutator はロック済みの依頼を検証・変更する関数。
// エラーを返した場合、変更は永続化されない。
type RequestMutator func(req *model.Request) error

// RequestRepository は献血依頼の永続化インターフェース。
type RequestRepository interface {
	// FindByID は指定IDの依頼を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Request, error)

	// FindWithRequester は依頼を依頼者の連絡先付きで取得する。見つからない場合はnilを返す。
	FindWithRequester(ctx context.Context, id string) (*RequestWithRequester, error)

	// ListOpenMatching は血液型が一致し、都市と国が大文字小文字を区別せず一致する
	// Open状態の依頼を作成日時の降順で返す。
	ListOpenMatching(ctx context.Context, bloodType model.BloodType, city, country string) ([]*model.Request, error)

	// Create は依頼を作成する。
	Create(ctx context.Context, req *model.Request) error

	// UpdateWithLock は依頼を排他ロック付きで読み出し、mutateを適用して保存する。
	// 状態遷移の検証は常に最新の行に対して行われる。
	// 見つからない場合はnilを返し、mutateは呼ばれない。
	UpdateWithLock(ctx context.Context, id string, mutate RequestMutator) (*model.Request, error)

	// ListByRequesterWithCounts は依頼者の依頼を作成日時の降順で応募数付きで返す。
	// limitが0以下の場合は全件を返す。
	ListByRequesterWithCounts(ctx context.Context, requesterID string, limit int) ([]RequestWithApplicantCount, error)

	// CountByStatus は依頼者の依頼数を状態ごとに集計する。
	CountByStatus(ctx context.Context, requesterID string) (map[model.RequestStatus]int, error)
}

// ApplicationRepository は応募の永続化インターフェース。
type ApplicationRepository interface {
	// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// FindActive は(依頼, 献血者)のApplied状態の応募を取得する。見つからない場合はnilを返す。
	FindActive(ctx context.Context, requestID, donorID string) (*model.Application, error)

	// FindLatest は(依頼, 献血者)の最新の応募を状態を問わず取得する。見つからない場合はnilを返す。
	FindLatest(ctx context.Context, requestID, donorID string) (*model.Application, error)

	// Create は応募を作成する。
	// Applied状態の応募が既に存在する場合はErrDuplicateActiveApplicationを返す。
	Create(ctx context.Context, app *model.Application) error

	// Withdraw はApplied状態の応募をWithdrawnに更新する。
	// 対象がApplied状態でなかった場合はfalseを返す。
	Withdraw(ctx context.Context, id string, at time.Time) (bool, error)

	// CountByDonor は献血者の指定状態の応募数を返す。
	CountByDonor(ctx context.Context, donorID string, status model.ApplicationStatus) (int, error)

	// ListByDonorWithRequest は献血者の応募を依頼情報付きで作成日時の降順に返す。
	// limitが0以下の場合は全件を返す。
	ListByDonorWithRequest(ctx context.Context, donorID string, limit int) ([]ApplicationWithRequest, error)

	// ListByRequestWithDonor は依頼への応募を献血者の連絡先付きで作成日時の降順に返す。
	ListByRequestWithDonor(ctx context.Context, requestID string) ([]ApplicationWithDonor, error)

	// ListRecentByRequester は依頼者の全依頼への応募を作成日時の降順にlimit件返す。
	ListRecentByRequester(ctx context.Context, requesterID string, limit int) ([]ApplicationWithDonor, error)

	// CountByRequest は依頼への応募数を状態を問わず返す。
	CountByRequest(ctx context.Context, requestID string) (int, error)
}

// RequestWithRequester は依頼と依頼者の連絡先を結合した構造体。
type RequestWithRequester struct {
	model.Request
	Requester model.RequesterContact
}

// RequestWithApplicantCount は依頼と応募数を結合した構造体。
type RequestWithApplicantCount struct {
	model.Request
	ApplicantCount int
}

// ApplicationWithRequest は応募と依頼の概要を結合した構造体。
type ApplicationWithRequest struct {
	model.Application
	Request model.Request
}

// ApplicationWithDonor は応募と献血者の連絡先、依頼の概要を結合した構造体。
type ApplicationWithDonor struct {
	model.Application
	Donor            model.DonorContact
	RequestBloodType model.BloodType
	RequestUrgency   model.Urgency
	RequestCity      string
}

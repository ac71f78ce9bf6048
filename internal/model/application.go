package model

import "time"

// ApplicationStatus は応募の状態。Applied → Withdrawn の一方向のみ遷移する。
type ApplicationStatus string

const (
	ApplicationStatusApplied   ApplicationStatus = "Applied"
	ApplicationStatusWithdrawn ApplicationStatus = "Withdrawn"
)

// Application は献血者の依頼への応募を表す。
// (RequestID, DonorID) ごとにApplied状態の行は高々1件。
// 取り下げ後の再応募は新しい行として作成される。
type Application struct {
	ID        string
	RequestID string
	DonorID   string
	Status    ApplicationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active はApplied状態であればtrueを返す。
func (a *Application) Active() bool {
	return a != nil && a.Status == ApplicationStatusApplied
}

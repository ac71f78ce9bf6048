// Package eligibility は献血者のクールダウン状態を算出する。
// 副作用やI/Oを持たない純粋関数のみを提供する。
package eligibility

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CooldownDays は前回献血から次回応募が可能になるまでの最低日数。
const CooldownDays = 54

const day = 24 * time.Hour

// Status は適格性の判定結果。
type Status string

const (
	// StatusEligible はクールダウンを満了している状態。
	StatusEligible Status = "eligible"
	// StatusCoolingDown はクールダウン期間中の状態。
	StatusCoolingDown Status = "cooling_down"
	// StatusUnknown は最終献血日が未設定または解析できず判定できない状態。
	// 画面表示では「不明」として扱い、「不適格」とは表示しない。
	StatusUnknown Status = "unknown"
)

// Result は適格性の算出結果。
type Result struct {
	Status Status
	// DaysSince は最終献血日からの経過日数（切り捨て）。StatusUnknownでは0。
	DaysSince int
	// DaysRemaining はクールダウン満了までの残り日数。StatusCoolingDownでのみ正の値。
	DaysRemaining int
	// NextEligibleAt は最終献血日 + CooldownDays。StatusCoolingDownでのみ設定される。
	NextEligibleAt *time.Time
}

// Eligible は応募可能であればtrueを返す。StatusUnknownはfalse。
func (r Result) Eligible() bool {
	return r.Status == StatusEligible
}

// Evaluate は最終献血日と現在時刻から適格性を算出する。
// lastがnilまたはゼロ値の場合はStatusUnknownを返す。
func Evaluate(last *time.Time, now time.Time) Result {
	if last == nil || last.IsZero() {
		return Result{Status: StatusUnknown}
	}

	daysSince := int(math.Floor(now.Sub(*last).Hours() / 24))
	if daysSince >= CooldownDays {
		return Result{Status: StatusEligible, DaysSince: daysSince}
	}

	next := last.Add(CooldownDays * day)
	return Result{
		Status:         StatusCoolingDown,
		DaysSince:      daysSince,
		DaysRemaining:  CooldownDays - daysSince,
		NextEligibleAt: &next,
	}
}

// ParseDate はISO形式の日付（YYYY-MM-DD またはRFC 3339）を解析する。
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date: %q", raw)
}

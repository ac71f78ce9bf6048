// Package matching は献血者と依頼のマッチング規則と並び替えを提供する。
package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/donormatch/internal/model"
)

// Criteria は献血者側のマッチング条件。比較用に正規化済み。
type Criteria struct {
	BloodType model.BloodType
	City      string
	Country   string
}

// CriteriaFromDonor は献血者プロフィールからマッチング条件を生成する。
func CriteriaFromDonor(p *model.DonorProfile) Criteria {
	return Criteria{
		BloodType: model.NormalizeBloodType(string(p.BloodType)),
		City:      normalizePlace(p.City),
		Country:   normalizePlace(p.Country),
	}
}

// normalizePlace は所在地比較用に前後空白を除去し小文字化する。
func normalizePlace(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// samePlace は所在地文字列が大文字小文字と前後空白を無視して一致するかを返す。
func samePlace(a, b string) bool {
	return normalizePlace(a) == normalizePlace(b)
}

// Matches は依頼がOpenであり、血液型が完全一致し、都市と国が一致する場合にtrueを返す。
// 血液型の互換性（O-は全員に供血可能など）は考慮しない。
func (c Criteria) Matches(r *model.Request) bool {
	if r == nil || r.Status != model.RequestStatusOpen {
		return false
	}
	return c.MatchesProfile(r)
}

// MatchesProfile は状態を問わず血液型と所在地の一致のみを判定する。
func (c Criteria) MatchesProfile(r *model.Request) bool {
	return model.NormalizeBloodType(string(r.BloodType)) == c.BloodType &&
		samePlace(r.City, c.City) &&
		samePlace(r.Country, c.Country)
}

// Filter はマッチする依頼のみを元の順序を保って返す。
func (c Criteria) Filter(requests []*model.Request) []*model.Request {
	out := make([]*model.Request, 0, len(requests))
	for _, r := range requests {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Order は一覧の並び順。
type Order string

const (
	// OrderNewest は作成日時の新しい順（既定）。
	OrderNewest Order = "newest"
	// OrderUrgency は緊急度の高い順。同順位は新しい順。
	OrderUrgency Order = "urgency"
	// OrderUnits は必要単位数の多い順。同数は新しい順。
	OrderUnits Order = "units"
	// OrderDistance は距離順。位置情報を持たないため入力順を維持する。
	OrderDistance Order = "distance"
)

// ParseOrder はクエリ文字列を並び順に変換する。空文字列はOrderNewest。
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderNewest:
		return OrderNewest, nil
	case OrderUrgency:
		return OrderUrgency, nil
	case OrderUnits:
		return OrderUnits, nil
	case OrderDistance:
		return OrderDistance, nil
	default:
		return "", fmt.Errorf("unknown sort order: %q", s)
	}
}

// Sort は依頼をその場で並び替える。
func Sort(requests []*model.Request, order Order) {
	newer := func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.After(requests[j].CreatedAt)
		}
		return requests[i].ID > requests[j].ID
	}

	switch order {
	case OrderUrgency:
		sort.SliceStable(requests, func(i, j int) bool {
			ri, rj := requests[i].Urgency.Rank(), requests[j].Urgency.Rank()
			if ri != rj {
				return ri > rj
			}
			return newer(i, j)
		})
	case OrderUnits:
		sort.SliceStable(requests, func(i, j int) bool {
			if requests[i].UnitsNeeded != requests[j].UnitsNeeded {
				return requests[i].UnitsNeeded > requests[j].UnitsNeeded
			}
			return newer(i, j)
		})
	case OrderDistance:
		// 入力順を維持する
	default:
		sort.SliceStable(requests, newer)
	}
}

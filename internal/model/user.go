// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role はユーザーの役割を表す。作成後は変更できない。
type Role string

const (
	// RoleDonor は献血者。
	RoleDonor Role = "DONOR"
	// RoleRequester は献血を依頼する病院または患者。
	RoleRequester Role = "REQUESTER"
)

// ParseRole は文字列をRoleに変換する。未知の値はエラーを返す。
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleDonor:
		return RoleDonor, nil
	case RoleRequester:
		return RoleRequester, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// Label はメッセージ用の複数形の呼称を返す。
func (r Role) Label() string {
	switch r {
	case RoleDonor:
		return "donors"
	case RoleRequester:
		return "requesters"
	default:
		return "unknown"
	}
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Principal は認証済みの呼び出し元を表す。
// トークン検証後にミドルウェアがコンテキストへ注入する。
type Principal struct {
	UserID string
	Role   Role
}

// Require は呼び出し元のロールがwantであることを検証する。
// actionは "apply to requests" のような動詞句で、拒否メッセージに使われる。
func (p Principal) Require(want Role, action string) error {
	switch p.Role {
	case RoleDonor, RoleRequester:
		if p.Role == want {
			return nil
		}
		return NewForbiddenError(fmt.Sprintf("Only %s can %s", want.Label(), action))
	default:
		return NewUnauthorizedError("Unknown role")
	}
}

// BloodType はABO/Rh式の血液型。
type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

// BloodTypes は有効な血液型の一覧。
var BloodTypes = []BloodType{
	BloodTypeAPos, BloodTypeANeg,
	BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg,
	BloodTypeOPos, BloodTypeONeg,
}

// NormalizeBloodType は前後の空白を除去し大文字化する。
func NormalizeBloodType(s string) BloodType {
	return BloodType(strings.ToUpper(strings.TrimSpace(s)))
}

// Valid は血液型が8種類のいずれかであるかを返す。
func (b BloodType) Valid() bool {
	for _, v := range BloodTypes {
		if b == v {
			return true
		}
	}
	return false
}

// RequesterCategory は依頼者の種別。
type RequesterCategory string

const (
	RequesterCategoryHospital RequesterCategory = "Hospital"
	RequesterCategoryPatient  RequesterCategory = "Patient"
)

// Valid は種別が有効かを返す。
func (c RequesterCategory) Valid() bool {
	return c == RequesterCategoryHospital || c == RequesterCategoryPatient
}

// DonorProfile は献血者のプロフィール。UserIDが主キーでUserと1:1。
type DonorProfile struct {
	UserID           string
	Name             string
	Phone            string
	BloodType        BloodType
	LastDonationDate *time.Time
	City             string
	Country          string
	AddressLine      string
	PhotoURL         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RequesterProfile は依頼者のプロフィール。依頼作成時の所在地の既定値を提供する。
type RequesterProfile struct {
	UserID      string
	Name        string
	Category    RequesterCategory
	Phone       string
	City        string
	Country     string
	AddressLine string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

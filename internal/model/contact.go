package model

import "time"

// RequesterContact は依頼者の識別情報と連絡先を結合した内部レコード。
// 閲覧者へ返す前に必ず visibility パッケージで射影すること。
type RequesterContact struct {
	UserID      string
	Email       string
	Name        string
	Category    RequesterCategory
	Phone       string
	City        string
	Country     string
	AddressLine string
}

// DonorContact は応募者（献血者）の識別情報と連絡先を結合した内部レコード。
type DonorContact struct {
	UserID           string
	Email            string
	Name             string
	Phone            string
	BloodType        BloodType
	City             string
	Country          string
	LastDonationDate *time.Time
	PhotoURL         string
}

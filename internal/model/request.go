package model

import "time"

// MaxCaseDescriptionLength はcaseDescriptionの最大文字数。
const MaxCaseDescriptionLength = 300

// Urgency は依頼の緊急度。Low < Normal < High < Critical の順に高い。
type Urgency string

const (
	UrgencyLow      Urgency = "Low"
	UrgencyNormal   Urgency = "Normal"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

// Rank は緊急度の順位を返す。未知の値は0。
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyNormal:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyCritical:
		return 4
	default:
		return 0
	}
}

// Valid は緊急度が有効かを返す。
func (u Urgency) Valid() bool {
	return u.Rank() > 0
}

// RequestStatus は依頼の状態。
type RequestStatus string

const (
	RequestStatusOpen      RequestStatus = "Open"
	RequestStatusResolved  RequestStatus = "Resolved"
	RequestStatusCancelled RequestStatus = "Cancelled"
)

// Valid は状態が有効かを返す。
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusOpen, RequestStatusResolved, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal はResolvedまたはCancelledであればtrueを返す。
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusResolved || s == RequestStatusCancelled
}

// Request は依頼者が作成する献血依頼。
// RequesterID, BloodType, City, Country は作成後に変更できない。
type Request struct {
	ID              string
	RequesterID     string
	BloodType       BloodType
	UnitsNeeded     int
	Urgency         Urgency
	CaseDescription string
	Status          RequestStatus
	City            string
	Country         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

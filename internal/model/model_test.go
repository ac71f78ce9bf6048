package model

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"DONOR", RoleDonor, false},
		{" requester ", RoleRequester, false},
		{"admin", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrincipalRequire(t *testing.T) {
	donor := Principal{UserID: "u1", Role: RoleDonor}
	if err := donor.Require(RoleDonor, "apply to requests"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := donor.Require(RoleRequester, "create requests")
	if !HasCategory(err, CategoryAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if err.(*APIError).Message != "Only requesters can create requests" {
		t.Errorf("Message = %q", err.(*APIError).Message)
	}

	unknown := Principal{UserID: "u2", Role: "ADMIN"}
	if err := unknown.Require(RoleDonor, "apply"); !HasCategory(err, CategoryAuth) {
		t.Errorf("expected auth error for unknown role, got %v", err)
	}
}

func TestUrgencyRank(t *testing.T) {
	order := []Urgency{UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s should rank below %s", order[i-1], order[i])
		}
	}
	if Urgency("Extreme").Valid() {
		t.Error("unknown urgency should be invalid")
	}
}

func TestBloodType(t *testing.T) {
	if got := NormalizeBloodType(" ab- "); got != BloodTypeABNeg {
		t.Errorf("NormalizeBloodType = %q, want %q", got, BloodTypeABNeg)
	}
	if BloodType("C+").Valid() {
		t.Error("C+ should be invalid")
	}
	if len(BloodTypes) != 8 {
		t.Errorf("len(BloodTypes) = %d, want 8", len(BloodTypes))
	}
}

func TestRequestStatus(t *testing.T) {
	if RequestStatusOpen.Terminal() {
		t.Error("Open must not be terminal")
	}
	if !RequestStatusResolved.Terminal() || !RequestStatusCancelled.Terminal() {
		t.Error("Resolved and Cancelled must be terminal")
	}
	if RequestStatus("Closed").Valid() {
		t.Error("Closed should be invalid")
	}
}

func TestApplicationActive(t *testing.T) {
	var nilApp *Application
	if nilApp.Active() {
		t.Error("nil application must not be active")
	}
	if !(&Application{Status: ApplicationStatusApplied}).Active() {
		t.Error("Applied should be active")
	}
	if (&Application{Status: ApplicationStatusWithdrawn}).Active() {
		t.Error("Withdrawn should not be active")
	}
}

func TestAPIErrorHelpers(t *testing.T) {
	err := NewNotEligibleError(12)
	if err.Message != "You are not eligible to donate for 12 more days." {
		t.Errorf("Message = %q", err.Message)
	}
	if !HasCode(err, ErrCodeNotEligible) {
		t.Error("HasCode should match")
	}
	if HasCategory(nil, CategoryValidation) {
		t.Error("nil error has no category")
	}
	if got := NewAlreadyInStatusError(RequestStatusResolved).Message; got != "Request is already 'Resolved'" {
		t.Errorf("Message = %q", got)
	}
}

package user

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRole(t *testing.T) {
	for _, r := range AllRoles {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	if Role("surgeon").Valid() || Role("").Valid() {
		t.Fatalf("unknown roles must be invalid")
	}

	if RolePatient.IsStaff() {
		t.Fatalf("patients are not staff")
	}
	if !RoleNurse.IsStaff() || !RoleDoctor.IsStaff() || !RoleAdmin.IsStaff() {
		t.Fatalf("admin, doctor and nurse are staff")
	}
}

func TestNewFromRegisterRequestNormalises(t *testing.T) {
	u := NewFromRegisterRequest(RegisterRequest{Name: "  Ann ", Email: " Ann@Clinic.COM ", Role: RoleNurse}, "hash")

	if u.Name != "Ann" || u.Email != "ann@clinic.com" || u.PasswordHash != "hash" {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.OnboardingComplete || u.CreatedAt.IsZero() || u.ID != "" {
		t.Fatalf("new users start un-onboarded with a timestamp and no id: %+v", u)
	}
}

func TestViewsNeverCarryThePasswordHash(t *testing.T) {
	u := User{ID: "1", Name: "Ann", Email: "ann@c.com", PasswordHash: "$2a$10$secret", Role: RolePatient}

	for name, v := range map[string]any{"public": u.Public(), "auth": u.AuthView(), "summary": u.Summary()} {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if strings.Contains(string(b), "secret") {
			t.Fatalf("%s view leaks the hash: %s", name, b)
		}
	}

	b, _ := json.Marshal(u.Public())
	if !strings.Contains(string(b), `"_id":"1"`) {
		t.Fatalf("public view keys the id as _id: %s", b)
	}
	b, _ = json.Marshal(u.AuthView())
	if !strings.Contains(string(b), `"id":"1"`) {
		t.Fatalf("auth view keys the id as id: %s", b)
	}
}

package services

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"medwaste-backend/internal/apperr"
)

func newUserService(f *fixture) *UserService {
	s := NewUserService(f.store)
	s.cost = bcrypt.MinCost
	s.now = f.clock.Now
	return s
}

func TestCreateAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	users := newUserService(f)

	u, err := users.Create(f.ctx, NewUser{
		Email:    "  olive@example.com ",
		Password: "correct-horse",
		Name:     "Olive Operator",
		Role:     "incinerator",
		PlantID:  ptr(plantID),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "olive@example.com" || u.Password == "correct-horse" {
		t.Fatalf("user = %+v", u)
	}

	got, err := users.Authenticate(f.ctx, "olive@example.com", "correct-horse")
	if err != nil || got.ID != u.ID {
		t.Fatalf("Authenticate = %v, %v", got, err)
	}
	if _, err := users.Authenticate(f.ctx, "olive@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := users.Authenticate(f.ctx, "nobody@example.com", "x"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}

	ids, _ := f.store.PlantUserIDs(f.ctx, plantID)
	if len(ids) != 2 {
		t.Fatalf("plant operators = %v, want op1 and the new user", ids)
	}

	_, err = users.Create(f.ctx, NewUser{Email: "olive@example.com", Password: "another-pass", Name: "Dup", Role: "driver"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate email err = %v, want conflict", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	users := newUserService(f)

	valid := NewUser{Email: "x@example.com", Password: "long-enough", Name: "X", Role: "driver"}
	tests := []struct {
		name  string
		edit  func(*NewUser)
		field string
	}{
		{"bad email", func(u *NewUser) { u.Email = "not-an-email" }, "email"},
		{"short password", func(u *NewUser) { u.Password = "short" }, "password"},
		{"blank name", func(u *NewUser) { u.Name = "  " }, "name"},
		{"unknown role", func(u *NewUser) { u.Role = "manager" }, "role"},
		{"facility without company", func(u *NewUser) { u.Role = "facility" }, "company_id"},
		{"operator without plant", func(u *NewUser) { u.Role = "incinerator" }, "plant_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.edit(&req)
			_, err := users.Create(f.ctx, req)
			if apperr.Field(err) != tt.field {
				t.Fatalf("err = %v, want field %s", err, tt.field)
			}
		})
	}

	req := valid
	req.Role = "incinerator"
	req.PlantID = ptr("plant-missing")
	if _, err := users.Create(f.ctx, req); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown plant err = %v, want not found", err)
	}
}

func TestRegisterDevice(t *testing.T) {
	f := newFixture(t)
	users := newUserService(f)

	if _, err := users.RegisterDevice(f.ctx, "d1", "tok-1", "ios"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	if _, err := users.RegisterDevice(f.ctx, "d2", "tok-1", "android"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if _, err := users.RegisterDevice(f.ctx, "d1", "tok-2", "windows"); apperr.Field(err) != "device_type" {
		t.Fatalf("bad device type err = %v", err)
	}

	d1, _ := f.store.DeviceTokens(f.ctx, []string{"d1"})
	d2, _ := f.store.DeviceTokens(f.ctx, []string{"d2"})
	if len(d1) != 0 || len(d2) != 1 || d2[0] != "tok-1" {
		t.Fatalf("tokens d1=%v d2=%v, want tok-1 moved to d2", d1, d2)
	}
}

package binder

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpsertCreatesOnce(t *testing.T) {
	s := NewMemorySlots()

	created, err := Upsert(s, "u1", RolePreview, RoleURLField)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if diff := cmp.Diff([]Role{RolePreview, RoleURLField}, created); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}

	created, err = Upsert(s, "u2", RolePreview, RoleURLField)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("second upsert created %v", created)
	}

	want := map[Role]string{RolePreview: "u2", RoleURLField: "u2"}
	if diff := cmp.Diff(want, s.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[Role]int{RolePreview: 1, RoleURLField: 1}, s.Creates); diff != "" {
		t.Errorf("creates mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertIsAllOrNothing(t *testing.T) {
	s := NewMemorySlots()
	s.Unavailable[RoleURLField] = ErrMissingElement

	_, err := Upsert(s, "u1", RolePreview, RoleURLField)
	if !errors.Is(err, ErrMissingElement) {
		t.Fatalf("Upsert error = %v, want ErrMissingElement", err)
	}
	if len(s.Values) != 0 {
		t.Errorf("values written despite failure: %v", s.Values)
	}
}

func TestUpsertExistingSlotNeedsNoParent(t *testing.T) {
	s := NewMemorySlots()
	s.Values[RoleURLField] = "old"
	s.Unavailable[RoleURLField] = ErrMissingElement

	if _, err := Upsert(s, "new", RoleURLField); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if s.Values[RoleURLField] != "new" {
		t.Errorf("value = %q, want new", s.Values[RoleURLField])
	}
}

func TestRoleString(t *testing.T) {
	if RolePreview.String() != "preview" || RoleURLField.String() != "url_field" {
		t.Error("unexpected role names")
	}
	if Role(9).String() != "role(9)" {
		t.Errorf("unknown role = %q", Role(9).String())
	}
}

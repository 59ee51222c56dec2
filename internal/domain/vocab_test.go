package domain

import (
	"errors"
	"testing"
)

func TestParseAction(t *testing.T) {
	for _, in := range []string{"keep", "DELETE", " delete_1d ", "delete_10d", "undecided"} {
		if _, err := ParseAction(in); err != nil {
			t.Fatalf("ParseAction(%q) error: %v", in, err)
		}
	}
	_, err := ParseAction("archive")
	if !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("ParseAction(archive) err = %v; want ErrUnknownValue", err)
	}
}

func TestAction_Storable(t *testing.T) {
	if ActionUndecided.Storable() {
		t.Fatalf("undecided must not be storable")
	}
	if !ActionDelete10d.Storable() {
		t.Fatalf("delete_10d must be storable")
	}
	if ActionDelete1d.AddressRule() {
		t.Fatalf("delete_1d is not an address rule action")
	}
	if !ActionKeep.AddressRule() || !ActionDelete.AddressRule() {
		t.Fatalf("keep/delete are address rule actions")
	}
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension("From_Email")
	if err != nil || d != DimFromEmail {
		t.Fatalf("ParseDimension = %q, %v", d, err)
	}
	if _, err := ParseDimension("cc_email"); !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}

	if kt, ok := DimSubdomain.KeyType(); !ok || kt != KeySubdomain {
		t.Fatalf("DimSubdomain.KeyType() = %q, %v", kt, ok)
	}
	if _, ok := DimSubject.KeyType(); ok {
		t.Fatalf("subject has no key type")
	}
	if dir, ok := DimToEmail.Direction(); !ok || dir != DirectionTo {
		t.Fatalf("DimToEmail.Direction() = %q, %v", dir, ok)
	}
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("clear")
	if err != nil || op != OpClear {
		t.Fatalf("ParseOperation = %q, %v", op, err)
	}
	if OpGet.Mutates() || !OpRemove.Mutates() {
		t.Fatalf("Mutates() wrong")
	}
	if _, err := ParseOperation("UPSERT"); !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}
}

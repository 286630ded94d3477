package device

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func echo(_ context.Context, args []string) (any, error) {
	return args, nil
}

func TestTable_Register(t *testing.T) {
	tests := []struct {
		name    string
		capName string
		wantErr error
	}{
		{"ok", "READ", nil},
		{"empty", "", ErrInvalidName},
		{"space", "READ ALL", ErrInvalidName},
		{"semicolon", "A;B", ErrInvalidName},
		{"methods available", "METHODSAVAILABLE", ErrReservedName},
		{"update interval", "UPDATEINTERVAL", ErrReservedName},
		{"print update", "PUPDATE", ErrReservedName},
		{"plot prefix", "PLOTX", ErrReservedName},
		{"special request prefix", "SPECIALREQUEST", ErrReservedName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTable().Register(tt.capName, echo)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register(%q) error = %v, want %v", tt.capName, err, tt.wantErr)
			}
		})
	}
}

func TestTable_RegisterDuplicateAndNil(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register("READ", echo); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Register("READ", echo); !errors.Is(err, ErrDuplicateCapability) {
		t.Errorf("duplicate Register() error = %v, want ErrDuplicateCapability", err)
	}
	if err := tbl.Register("WRITE", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("nil func Register() error = %v, want ErrInvalidName", err)
	}
}

func TestTable_MustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRegister() with reserved name did not panic")
		}
	}()
	NewTable().MustRegister("PLOT1", echo)
}

func TestTable_InvokeAndNames(t *testing.T) {
	tbl := NewTable()
	tbl.MustRegister("UPDATE", echo)
	tbl.MustRegister("READ", echo)
	tbl.MustRegister("IDN", echo)

	if got, want := tbl.Names(), []string{"IDN", "READ", "UPDATE"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if !tbl.Has("READ") || tbl.Has("read") {
		t.Error("Has() should be case-sensitive")
	}

	got, err := tbl.Invoke(context.Background(), "READ", []string{"1"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("Invoke() = %v", got)
	}

	if _, err := tbl.Invoke(context.Background(), "BOGUS", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Invoke(BOGUS) error = %v, want ErrNotFound", err)
	}
}

func TestAdapterError(t *testing.T) {
	inner := errors.New("timeout")
	err := error(&AdapterError{Op: "VOLT", Err: inner})

	if !errors.Is(err, inner) {
		t.Error("AdapterError should unwrap to its cause")
	}
	var ae *AdapterError
	if !errors.As(err, &ae) || ae.Op != "VOLT" {
		t.Errorf("errors.As() = %v", ae)
	}
	if err.Error() != "device: VOLT: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestInvalidArgs(t *testing.T) {
	err := InvalidArgs("want %d args, got %d", 2, 1)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("InvalidArgs() = %v, want wrapping ErrInvalidArgs", err)
	}
}

func TestStateClone(t *testing.T) {
	s := State{"a": 1}
	c := s.Clone()
	c["b"] = 2
	if _, ok := s["b"]; ok {
		t.Error("Clone() shares storage with original")
	}
	if State(nil).Clone() == nil {
		t.Error("Clone() of nil should be empty, not nil")
	}
}

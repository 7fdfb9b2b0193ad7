package kernel

import (
	"testing"

	"github.com/pkg/errors"
)

func TestKernelError(t *testing.T) {
	err := &Error{
		Module:  "foo",
		Message: "error message",
	}

	if err.Error() != err.Message {
		t.Fatalf("expected to err.Error() to return %q; got %q", err.Message, err.Error())
	}
}

func TestIsKind(t *testing.T) {
	errNoMem := &Error{Module: "test", Message: "out of memory", Kind: NoMemory}

	specs := []struct {
		err  error
		kind ErrorKind
		exp  bool
	}{
		{nil, NoMemory, false},
		{errNoMem, NoMemory, true},
		{errNoMem, InvalidInput, false},
		{errors.Wrap(errNoMem, "boot"), NoMemory, true},
		{errors.New("plain error"), NoMemory, false},
		{(*Error)(nil), NoMemory, false},
	}

	for specIndex, spec := range specs {
		if got := IsKind(spec.err, spec.kind); got != spec.exp {
			t.Errorf("[spec %d] expected IsKind to return %t; got %t", specIndex, spec.exp, got)
		}
	}
}

func TestErrorKindString(t *testing.T) {
	specs := map[ErrorKind]string{
		KindUnknown:   "unknown",
		InvalidInput:  "invalid input",
		NoMemory:      "no memory",
		BadAddress:    "bad address",
		AlreadyExists: "already exists",
	}

	for kind, exp := range specs {
		if got := kind.String(); got != exp {
			t.Errorf("expected kind %d to stringify as %q; got %q", kind, exp, got)
		}
	}
}

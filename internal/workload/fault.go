package workload

import (
	"errors"
	"fmt"
	"reflect"
)

// PanicKind is the fault kind of a recovered panic.
const PanicKind = "panic"

// Fault is an error raised by a unit. It is data for the assertion stage,
// not a reason to abort the run.
type Fault struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`

	// Stack is set for panics.
	Stack string `json:"-"`

	Err error `json:"-"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault classifies err. The kind comes from a FaultKind() string method
// anywhere in the chain, otherwise from the error's type name.
func NewFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	var kinded interface{ FaultKind() string }
	if errors.As(err, &kinded) {
		return &Fault{Kind: kinded.FaultKind(), Message: err.Error(), Err: err}
	}
	return &Fault{Kind: typeName(err), Message: err.Error(), Err: err}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

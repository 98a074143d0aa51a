package faults

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// FailureContext is the diagnostic view of an error written onto a failed message
type FailureContext struct {
	Type       string
	InnerType  string
	Message    string
	HelpLink   string
	Source     string
	StackTrace string
}

// HasCause reports whether the error had a nested cause.
func (f FailureContext) HasCause() bool {
	return f.InnerType != ""
}

type helpLinker interface {
	HelpLink() string
}

type sourcer interface {
	Source() string
}

type stackTracer interface {
	StackTrace() string
}

// DescribeFailure extracts a FailureContext from err. It never panics; a nil error
// yields a context with only Message set.
func DescribeFailure(err error) FailureContext {
	if err == nil {
		return FailureContext{Message: "<nil>"}
	}

	fc := FailureContext{
		Type:    typeName(err),
		Message: err.Error(),
		Source:  packagePath(err),
	}

	if cause := unwrapOnce(err); cause != nil {
		fc.InnerType = typeName(cause)
	}

	var h helpLinker
	if errors.As(err, &h) {
		fc.HelpLink = h.HelpLink()
	}
	var s sourcer
	if errors.As(err, &s) && s.Source() != "" {
		fc.Source = s.Source()
	}
	var st stackTracer
	if errors.As(err, &st) {
		fc.StackTrace = st.StackTrace()
	}

	return fc
}

func unwrapOnce(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if inner != nil {
				return inner
			}
		}
	}
	return nil
}

func baseType(err error) reflect.Type {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// typeName returns the fully qualified type name, e.g. "go-faults/internal/faults.Fault"
func typeName(err error) string {
	t := baseType(err)
	if t.PkgPath() == "" || t.Name() == "" {
		return fmt.Sprintf("%T", err)
	}
	return t.PkgPath() + "." + t.Name()
}

func packagePath(err error) string {
	return baseType(err).PkgPath()
}

// Fault is an error that records the component it came from and the call stack at creation
type Fault struct {
	msg      string
	source   string
	helpLink string
	stack    []uintptr
	err      error
}

// New creates a Fault with the given message
func New(source, msg string) *Fault {
	return &Fault{msg: msg, source: source, stack: callers()}
}

// Wrap annotates err with a source component and the current stack.
// Wrap returns nil when err is nil.
func Wrap(err error, source, msg string) *Fault {
	if err == nil {
		return nil
	}
	return &Fault{msg: msg, source: source, stack: callers(), err: err}
}

// WithHelpLink attaches a documentation link to the fault
func (f *Fault) WithHelpLink(link string) *Fault {
	f.helpLink = link
	return f
}

func (f *Fault) Error() string {
	if f.err == nil {
		if f.msg == "" {
			return f.fallbackMessage()
		}
		return f.msg
	}
	if f.msg == "" {
		return f.err.Error()
	}
	return f.msg + ": " + f.err.Error()
}

// fallbackMessage names the fault when it was created without a message
func (f *Fault) fallbackMessage() string {
	if f.source == "" {
		return "fault"
	}
	return "fault in " + f.source
}

func (f *Fault) Unwrap() error    { return f.err }
func (f *Fault) Source() string   { return f.source }
func (f *Fault) HelpLink() string { return f.helpLink }

// StackTrace renders the recorded frames, one "function\n\tfile:line" pair per frame
func (f *Fault) StackTrace() string {
	var b strings.Builder
	frames := runtime.CallersFrames(f.stack)
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}

func callers() []uintptr {
	pcs := make([]uintptr, 32)
	// skip runtime.Callers, callers and New/Wrap
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// Package errcode defines the error vocabulary the services speak over the
// bus. Codes double as error values so a verb handler can return one
// directly, and Wrap carries a code alongside an underlying cause.
package errcode

// Code is a short machine-readable error tag, comparable and usable as an
// error on its own.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK             Code = "ok"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"

	// MotorFault marks a phase output sink refusing a commit.
	MotorFault Code = "motor_fault"

	Error Code = "error" // catch-all when nothing finer fits
)

// Wrap ties code to cause so both survive error plumbing: Of recovers the
// code, errors.Unwrap the cause.
func Wrap(code Code, cause error) error {
	return &wrapped{code: code, cause: cause}
}

type wrapped struct {
	code  Code
	cause error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return string(w.code)
	}
	return string(w.code) + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() error { return w.cause }
func (w *wrapped) Code() Code    { return w.code }

// Of reports the Code an error carries. nil maps to OK; an error without a
// code falls back to the generic Error.
func Of(err error) Code {
	switch v := err.(type) {
	case nil:
		return OK
	case Code:
		return v
	case interface{ Code() Code }:
		return v.Code()
	}
	return Error
}

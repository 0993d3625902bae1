// Package gameerr defines the error taxonomy shared by the board, the match
// state machine, the room registry and the gateway.
package gameerr

import (
	"errors"
	"fmt"
)

// Class groups error codes by how the gateway treats them.
type Class string

const (
	// ClassValidation covers malformed or out-of-range input.
	ClassValidation Class = "validation"
	// ClassRuleViolation covers well-formed actions the game rules forbid.
	// These are logged as potential client bugs or cheat attempts.
	ClassRuleViolation Class = "ruleViolation"
	// ClassResourceConflict covers room membership conflicts.
	ClassResourceConflict Class = "resourceConflict"
)

// Error is a coded game error. Two errors match under errors.Is when their
// codes are equal, so a detailed error still matches its sentinel.
type Error struct {
	Code   string
	Class  Class
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetail returns a copy of e carrying a human readable reason.
func (e *Error) WithDetail(format string, args ...any) *Error {
	return &Error{Code: e.Code, Class: e.Class, Detail: fmt.Sprintf(format, args...)}
}

func newError(code string, class Class) *Error {
	return &Error{Code: code, Class: class}
}

// Validation errors
var (
	ErrMalformedMessage  = newError("MalformedMessage", ClassValidation)
	ErrUnknownMessage    = newError("UnknownMessage", ClassValidation)
	ErrInvalidCoordinate = newError("InvalidCoordinate", ClassValidation)
	ErrInvalidFleet      = newError("InvalidFleet", ClassValidation)
	ErrInvalidRoomName   = newError("InvalidRoomName", ClassValidation)
	ErrPasswordRequired  = newError("PasswordRequired", ClassValidation)
	ErrInvalidPassword   = newError("InvalidPassword", ClassValidation)
)

// Rule violations
var (
	ErrNotYourTurn = newError("NotYourTurn", ClassRuleViolation)
	ErrWrongPhase  = newError("WrongPhase", ClassRuleViolation)
	ErrAlreadyShot = newError("AlreadyShot", ClassRuleViolation)
	ErrNotAMember  = newError("NotAMember", ClassRuleViolation)
)

// Resource conflicts
var (
	ErrRoomFull      = newError("RoomFull", ClassResourceConflict)
	ErrAlreadyInRoom = newError("AlreadyInRoom", ClassResourceConflict)
	ErrRoomNotFound  = newError("RoomNotFound", ClassResourceConflict)
	ErrBadPassword   = newError("BadPassword", ClassResourceConflict)
)

// InvalidFleet returns ErrInvalidFleet with a reason attached.
func InvalidFleet(format string, args ...any) *Error {
	return ErrInvalidFleet.WithDetail(format, args...)
}

// As extracts the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

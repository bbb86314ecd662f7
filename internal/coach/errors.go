package coach

import (
	"errors"
	"fmt"
)

// Kind classifies workflow errors for callers and HTTP mapping.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindExpired           Kind = "expired"
	KindInvalidInvitation Kind = "invalid_invitation"
	KindUpstream          Kind = "upstream"
	KindForbidden         Kind = "forbidden"
)

// Step names the onboarding or contract step that failed.
type Step string

const (
	StepVerifyInvitation     Step = "verify_invitation"
	StepResolveAccount       Step = "resolve_account"
	StepUpsertProfile        Step = "upsert_profile"
	StepUploadFiles          Step = "upload_files"
	StepInsertCoach          Step = "insert_coach"
	StepInsertDocuments      Step = "insert_documents"
	StepInsertCertifications Step = "insert_certifications"
	StepMarkInvitationUsed   Step = "mark_invitation_used"

	StepRenderContract Step = "render_contract"
	StepUploadContract Step = "upload_contract"
	StepInsertContract Step = "insert_contract"
)

// Error is the workflow error type. Compare kinds with errors.Is against the Err* sentinels.
type Error struct {
	Kind Kind
	Step Step
	Msg  string
	// Partial is set when external side effects (identity account, stored files)
	// may exist although the operation failed. Retrying is safe.
	Partial bool
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Step != "" {
		msg = string(e.Step) + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel (an Error carrying only a Kind) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" || t.Step != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrInvalidInvitation = &Error{Kind: KindInvalidInvitation}
	ErrUpstream          = &Error{Kind: KindUpstream}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error   { return newErr(KindValidation, format, args...) }
func Conflictf(format string, args ...any) error     { return newErr(KindConflict, format, args...) }
func NotFoundf(format string, args ...any) error     { return newErr(KindNotFound, format, args...) }
func InvalidStatef(format string, args ...any) error { return newErr(KindInvalidState, format, args...) }
func Expiredf(format string, args ...any) error      { return newErr(KindExpired, format, args...) }
func Forbiddenf(format string, args ...any) error    { return newErr(KindForbidden, format, args...) }

// Upstream wraps a provider failure (identity, storage, email, database) at step.
func Upstream(step Step, msg string, err error) error {
	return &Error{Kind: KindUpstream, Step: step, Msg: msg, Err: err}
}

// AtStep tags err with step. Workflow errors keep their kind; anything else becomes upstream.
func AtStep(step Step, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Step = step
		return &cp
	}
	return Upstream(step, "operation failed", err)
}

// KindOf returns the kind of the outermost workflow error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StepOf returns the failing step, if any.
func StepOf(err error) Step {
	var e *Error
	if errors.As(err, &e) {
		return e.Step
	}
	return ""
}

// PartialStateOf reports whether a failure may have left external side effects behind.
func PartialStateOf(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Partial
}

func markPartial(err error) error {
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Partial = true
		return &cp
	}
	return err
}

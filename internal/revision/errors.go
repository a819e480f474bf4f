package revision

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the error type of every revision operation.
//
// Consistency codes indicate corrupted persisted state or protocol misuse
// and must abort the enclosing operation:
//   - NO_CURRENT_REVISION, REVISION_NOT_FOUND, ERROR_REVISION_DOES_NOT_EXIST
//   - INVALID_STATE, TRANSACTION_PROTOCOL, RESERVED_KEY
//
// Validation codes are raised before any write and are safe to correct and retry:
//   - UNKNOWN_FIELD, REQUIRED_FIELD_MISSING, STATIC_FIELD
//   - INVALID_VALUE, INVALID_TRANSITION, NOT_EDITABLE
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	RecordType string
	RecordID   int64
	Revision   int64
	Field      string
	State      string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes revision errors.
type ErrorCode string

const (
	ErrCodeNoCurrentRevision ErrorCode = "NO_CURRENT_REVISION"
	ErrCodeRevisionNotFound  ErrorCode = "REVISION_NOT_FOUND"
	// ErrCodeCopySourceMissing is raised when a revision copy names a source
	// revision that does not exist.
	ErrCodeCopySourceMissing   ErrorCode = "ERROR_REVISION_DOES_NOT_EXIST"
	ErrCodeInvalidState        ErrorCode = "INVALID_STATE"
	ErrCodeTransactionProtocol ErrorCode = "TRANSACTION_PROTOCOL"
	ErrCodeReservedKey         ErrorCode = "RESERVED_KEY"

	ErrCodeUnknownField         ErrorCode = "UNKNOWN_FIELD"
	ErrCodeRequiredFieldMissing ErrorCode = "REQUIRED_FIELD_MISSING"
	ErrCodeStaticField          ErrorCode = "STATIC_FIELD"
	ErrCodeInvalidValue         ErrorCode = "INVALID_VALUE"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotEditable          ErrorCode = "NOT_EDITABLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var ctx []string
	if e.RecordType != "" {
		ctx = append(ctx, "type="+e.RecordType)
	}
	if e.RecordID != 0 {
		ctx = append(ctx, fmt.Sprintf("id=%d", e.RecordID))
	}
	if e.Revision != 0 {
		ctx = append(ctx, fmt.Sprintf("revision=%d", e.Revision))
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if e.State != "" {
		ctx = append(ctx, "state="+e.State)
	}

	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConsistency reports whether the code signals corrupted state or misuse.
func (c ErrorCode) IsConsistency() bool {
	switch c {
	case ErrCodeNoCurrentRevision, ErrCodeRevisionNotFound, ErrCodeCopySourceMissing,
		ErrCodeInvalidState, ErrCodeTransactionProtocol, ErrCodeReservedKey:
		return true
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsNoCurrentRevision returns true if no current revision pointer exists.
func IsNoCurrentRevision(err error) bool { return CodeOf(err) == ErrCodeNoCurrentRevision }

// IsRevisionNotFound returns true if a selected revision does not exist.
func IsRevisionNotFound(err error) bool { return CodeOf(err) == ErrCodeRevisionNotFound }

// IsCopySourceMissing returns true if a revision copy had no source row.
func IsCopySourceMissing(err error) bool { return CodeOf(err) == ErrCodeCopySourceMissing }

// IsTransactionProtocol returns true if an edit session was misused.
func IsTransactionProtocol(err error) bool { return CodeOf(err) == ErrCodeTransactionProtocol }

// IsUnknownField returns true if a field is not declared for the record type.
func IsUnknownField(err error) bool { return CodeOf(err) == ErrCodeUnknownField }

// IsRequiredFieldMissing returns true if record creation lacked a required field.
func IsRequiredFieldMissing(err error) bool { return CodeOf(err) == ErrCodeRequiredFieldMissing }

// IsValidation returns true for caller-correctable errors.
func IsValidation(err error) bool {
	code := CodeOf(err)
	return code != "" && !code.IsConsistency()
}

func newUnknownField(recordType, field string) *Error {
	return &Error{
		Code:       ErrCodeUnknownField,
		Message:    "field is not declared for this record type",
		RecordType: recordType,
		Field:      field,
	}
}

func newProtocolError(recordType string, id int64, msg string) *Error {
	return &Error{
		Code:       ErrCodeTransactionProtocol,
		Message:    msg,
		RecordType: recordType,
		RecordID:   id,
	}
}

package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that must pick a reaction (HTTP status, retry, abort).
type Kind int

const (
	KindUnknown Kind = iota
	Validation
	NotFound
	Conflict
	Transient
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrShortCodeNotFound is returned when a short code doesn't exist or is not active
var ErrShortCodeNotFound = errors.New("short code not found")

// ErrInvalidURL is returned when the provided URL is invalid
var ErrInvalidURL = errors.New("invalid URL format")

// ErrDuplicateName is returned when a campaign name is already taken
var ErrDuplicateName = errors.New("campaign name already exists")

// ErrDatabaseConnection is returned when database connection fails
var ErrDatabaseConnection = errors.New("database connection failed")

// ErrShortCodeGenerationFailed is returned when we can't generate a unique short code
var ErrShortCodeGenerationFailed = errors.New("failed to generate unique short code")

// ErrInvalidShortCode is returned when the short code format is invalid
var ErrInvalidShortCode = errors.New("invalid short code format")

// ErrInvalidCampaignType is returned for a campaign type outside the known set
var ErrInvalidCampaignType = errors.New("invalid campaign type")

// ErrSessionNotFound is returned when a journey session has no recorded events
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidEventType is returned for a journey event type outside the known set
var ErrInvalidEventType = errors.New("invalid event type")

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDuplicateUsername  = errors.New("username already exists")
)

// AppError carries a Kind alongside the failing operation.
type AppError struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *AppError) Unwrap() error { return e.Err }

// E wraps err with a kind and the name of the operation that failed.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Kind: kind, Op: op, Err: err}
}

// Validationf builds a validation error with a formatted message.
func Validationf(op, format string, args ...any) error {
	return &AppError{Kind: Validation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err. Sentinels map to their natural kind; an AppError anywhere
// in the chain wins over sentinels it wraps.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindUnknown {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, ErrShortCodeNotFound), errors.Is(err, ErrSessionNotFound):
		return NotFound
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidShortCode),
		errors.Is(err, ErrInvalidCampaignType), errors.Is(err, ErrInvalidEventType):
		return Validation
	case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrDuplicateUsername),
		errors.Is(err, ErrShortCodeGenerationFailed):
		return Conflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		return Validation
	case errors.Is(err, ErrDatabaseConnection):
		return Transient
	}
	return KindUnknown
}

// ErrClickRecordingFailed is returned when click recording fails
type ErrClickRecordingFailed struct {
	ShortCode string
	Reason    string
}

func (e ErrClickRecordingFailed) Error() string {
	return fmt.Sprintf("failed to record click for campaign %s: %s", e.ShortCode, e.Reason)
}

// ErrURLCheckFailed is returned when URL health check fails
type ErrURLCheckFailed struct {
	URL    string
	Reason string
}

func (e ErrURLCheckFailed) Error() string {
	return fmt.Sprintf("failed to check URL %s: %s", e.URL, e.Reason)
}

// ErrConfigLoad is returned when configuration loading fails
type ErrConfigLoad struct {
	Path   string
	Reason string
}

func (e ErrConfigLoad) Error() string {
	return fmt.Sprintf("failed to load config from %s: %s", e.Path, e.Reason)
}

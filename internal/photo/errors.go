package photo

import (
	"errors"
	"fmt"
)

// Kind classifies a failed photo operation.
type Kind uint8

const (
	KindUnknown Kind = iota
	Unauthorized
	NotFound
	InvalidInput
	AlreadyMain
	CannotDeleteMain
	RemoteUploadFailed
	RemoteDeleteFailed
	PersistenceFailed
	InvariantViolation
)

var kindMessages = map[Kind]string{
	KindUnknown:        "unknown error",
	Unauthorized:       "not allowed to change this user's photos",
	NotFound:           "not found",
	InvalidInput:       "invalid photo upload",
	AlreadyMain:        "this is already the main photo",
	CannotDeleteMain:   "you can not delete your main photo",
	RemoteUploadFailed: "could not upload the photo to the image store",
	RemoteDeleteFailed: "could not delete the photo from the image store",
	PersistenceFailed:  "could not save photo changes",
	InvariantViolation: "user has photos but no main photo",
}

func (k Kind) String() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return fmt.Sprintf("photo.Kind(%d)", uint8(k))
}

// Error is returned by every Service operation that fails.
type Error struct {
	Op   string
	Kind Kind
	// Msg overrides the kind's text in Message.
	Msg string
	Err error
	// OrphanedPublicID is set when an image was uploaded but the photo
	// record referencing it could not be saved. Nothing deletes the object.
	OrphanedPublicID string
}

func (e *Error) Error() string {
	s := e.Message()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Message is the caller-facing text of the error.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrAlreadyMain) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnauthorized       = &Error{Kind: Unauthorized}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrInvalidInput       = &Error{Kind: InvalidInput}
	ErrAlreadyMain        = &Error{Kind: AlreadyMain}
	ErrCannotDeleteMain   = &Error{Kind: CannotDeleteMain}
	ErrRemoteUploadFailed = &Error{Kind: RemoteUploadFailed}
	ErrRemoteDeleteFailed = &Error{Kind: RemoteDeleteFailed}
	ErrPersistenceFailed  = &Error{Kind: PersistenceFailed}
	ErrInvariantViolation = &Error{Kind: InvariantViolation}
)

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ErrRecordNotFound is returned by Repository and Session lookups.
var ErrRecordNotFound = errors.New("photo: record not found")

package service

import "errors"

var (
	// ErrInvalidSession is returned when a token is malformed, expired, or
	// does not correspond to a live session.
	ErrInvalidSession = errors.New("invalid_session")

	// ErrInvalidCredentials is returned on a failed username/password check.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrLockedOut is returned while an identifier is suppressed after
	// repeated authentication failures.
	ErrLockedOut = errors.New("locked_out")

	// ErrBackendUnavailable is returned when a required collaborator
	// (store, credential backend, org hierarchy) cannot be reached.
	ErrBackendUnavailable = errors.New("backend_unavailable")

	// ErrConfigInconsistent is returned at startup when the role table
	// fails validation. It is fatal; the engine refuses to start.
	ErrConfigInconsistent = errors.New("config_inconsistent")
)

// isSessionError distinguishes definitive session rejections from backend
// faults, which deny with a different reason code.
func isSessionError(err error) bool {
	return errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrLockedOut)
}

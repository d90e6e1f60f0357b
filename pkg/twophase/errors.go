package twophase

import "errors"

var (
	// ErrGIDTooLong is returned when a caller-supplied GID exceeds MaxGIDLen.
	ErrGIDTooLong = errors.New("twophase: global transaction identifier too long")

	// ErrDuplicateGID is returned by PrepareTransaction when another valid
	// prepared transaction already holds the requested GID.
	ErrDuplicateGID = errors.New("twophase: global transaction identifier already in use")

	// ErrOutOfMemory is returned when the prepared-transaction slot table
	// is full.
	ErrOutOfMemory = errors.New("twophase: maximum prepared transactions reached")

	// ErrGIDNotFound is returned when a GID does not name any valid
	// prepared transaction.
	ErrGIDNotFound = errors.New("twophase: prepared transaction does not exist")

	// ErrGIDBusy is returned when a prepared transaction is already being
	// finished by another caller.
	ErrGIDBusy = errors.New("twophase: prepared transaction is busy")

	// ErrInsufficientPrivilege is returned when a caller other than the
	// transaction's owner (and not a superuser) attempts to finish it.
	ErrInsufficientPrivilege = errors.New("twophase: insufficient privilege to finish prepared transaction")

	// ErrStateFileCorrupted is returned when a prepared transaction's state
	// file cannot be read back intact.
	ErrStateFileCorrupted = errors.New("twophase: prepared transaction state file is corrupted")

	// ErrAlreadyResolved is returned when a state file's transaction was
	// already committed or aborted according to the commit log, typically
	// found during recovery after WAL replay already decided its fate.
	ErrAlreadyResolved = errors.New("twophase: prepared transaction was already resolved")
)

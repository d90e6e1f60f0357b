package twophase

// GID is a global transaction identifier: an opaque string supplied by the
// caller of PREPARE TRANSACTION, used afterward by COMMIT PREPARED or
// ROLLBACK PREPARED instead of the original session's transaction handle.
type GID string

// MaxGIDLen is the longest GID this package will store in a state file
// header. It is checked before any lock is taken, since it is a pure
// input-validation failure with nothing to roll back.
const MaxGIDLen = 199

// Validate reports ErrGIDTooLong if gid exceeds MaxGIDLen, and nothing
// otherwise: an empty GID is syntactically valid here, same as an empty
// string is a valid (if inadvisable) map key.
func (g GID) Validate() error {
	if len(g) > MaxGIDLen {
		return ErrGIDTooLong
	}
	return nil
}

// Package twophase implements the resource-manager side of two-phase
// commit for a single laura-db instance: PREPARE TRANSACTION detaches a
// running transaction's in-progress state from the session that started
// it and records it durably under a global identifier (GID); COMMIT
// PREPARED or ROLLBACK PREPARED later finishes it, from any session,
// using only that GID. It is not a distributed transaction coordinator;
// a caller wiring multiple participants together is expected to drive
// prepare/commit/rollback across them itself, using this package on
// each participant.
package twophase

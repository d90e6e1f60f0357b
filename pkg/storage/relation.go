package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// RelationID names an on-disk relation file the way a collection's backing
// store is named, independent of any in-memory *Collection. Prepared
// transactions that drop or truncate a collection record the relations to
// remove here so the removal can be replayed even if the process that
// issued PREPARE never comes back.
type RelationID string

// relationPath resolves a RelationID to the file it names inside dataDir.
// Relations created by the document store live in a "collections"
// subdirectory of dataDir; a relation file is named after the collection
// with a ".dat" suffix.
func relationPath(dataDir string, rel RelationID) string {
	return filepath.Join(dataDir, "collections", string(rel)+".dat")
}

// UnlinkRelation removes a relation's backing file from disk. It is called
// only after the commit or abort that decided the relation's fate has
// already been made durable, mirroring the storage manager's unlink step
// in a two-phase finish. A missing file is not an error: the relation may
// never have been materialized on disk, or may have already been removed
// by an earlier, interrupted attempt.
func UnlinkRelation(dataDir string, rel RelationID) error {
	path := relationPath(dataDir, rel)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink relation %s: %w", rel, err)
	}
	return nil
}

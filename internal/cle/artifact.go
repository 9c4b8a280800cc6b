package cle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sys/unix"
)

// artifact is the on-disk representation of a Table: a single msgpack
// document carrying the schema and row data together, footer-indexed in
// the sense that msgpack's own length-prefixed encoding lets a reader walk
// straight to the row array without re-parsing the schema.
type artifact struct {
	Schema schemaDoc
	Rows   []map[string]any
}

type schemaDoc struct {
	Fields []fieldDoc
}

type fieldDoc struct {
	Name     string
	Type     string
	Nullable bool
}

// WriteArtifact msgpack-encodes table and writes it to path using a
// write-then-atomic-rename discipline so partial artifacts are never
// observable. An advisory flock on a sibling lock file serializes
// concurrent writers targeting the same file_ref.
func WriteArtifact(path string, table *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cle: create artifact dir: %w", err)
	}

	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("cle: open lock file: %w", err)
	}
	defer lockFile.Close()
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("cle: acquire artifact lock: %w", err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	doc := toArtifactDoc(table)
	bytes, err := msgpack.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cle: encode artifact: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0o644); err != nil {
		return fmt.Errorf("cle: write temp artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cle: rename artifact into place: %w", err)
	}
	return nil
}

// ReadArtifact reads and fully decodes the artifact at path.
func ReadArtifact(path string) (*Table, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cle: read artifact: %w", err)
	}
	var doc artifact
	if err := msgpack.Unmarshal(bytes, &doc); err != nil {
		return nil, fmt.Errorf("cle: decode artifact: %w", err)
	}
	return fromArtifactDoc(doc), nil
}

// ReadArtifactSample decodes an artifact and truncates it to the first
// maxRows rows.
func ReadArtifactSample(path string, maxRows int) (*Table, error) {
	table, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	return table.Sample(maxRows), nil
}

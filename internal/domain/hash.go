package domain

import (
	"bytes"
	"sort"

	"github.com/tmthrgd/go-hex"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
)

// Hash is the content-addressed identity of a node's computation. It
// doubles as the Worker artifact's file_ref.
type Hash [32]byte

// Zero is the hash of a node with no settled identity yet (never computed).
var Zero Hash

// IsZero reports whether h has never been assigned.
func (h Hash) IsZero() bool { return h == Zero }

// String hex-encodes h using the same codec the Worker uses for file_ref
// filenames, so FlowNode.Hash().String() is always a valid artifact stem.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// canonicalEncode msgpack-encodes v with map keys sorted. Payload structs
// such as ManualInputPayload carry []map[string]any rows, and msgpack does
// not sort map keys by default (unlike encoding/json) — without sorting,
// each row would serialize in Go's randomized map-iteration order and the
// resulting hash would be non-deterministic across calls.
func canonicalEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashPayload computes the content-addressed hash of a node given its kind
// tag, its settings payload with UI-only fields already excluded by the
// caller, and the hashes of its resolved parents in port order.
//
// hash(node) = H(variant_tag || canonical(payload) || hash(left) ||
// hash(right) || main parents' hashes sorted by hash byte value)
func HashPayload(kind NodeKind, payload any, left, right Hash, mainParents []Hash) (Hash, error) {
	sorted := make([]Hash, len(mainParents))
	copy(sorted, mainParents)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i][:]) < string(sorted[j][:])
	})

	canonical, err := canonicalEncode(payload)
	if err != nil {
		return Hash{}, err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return Hash{}, err
	}
	h.Write([]byte(kind))
	h.Write(canonical)
	h.Write(left[:])
	h.Write(right[:])
	for _, p := range sorted {
		h.Write(p[:])
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// HashSettingsContent hashes the non-UI, non-structural portion of s (kind,
// cache_results, payload) alone, with no parent contribution folded in.
// NodeSettings.Payload is an `any` and cannot be compared with ==, so
// EqualIgnoringUI uses this to detect payload-only settings edits (a
// changed filter expression, a changed select column list, …) that must
// still reset the node even though no structural field changed.
func HashSettingsContent(s NodeSettings) (Hash, error) {
	canonical, err := canonicalEncode(s.forHash())
	if err != nil {
		return Hash{}, err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return Hash{}, err
	}
	h.Write(canonical)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

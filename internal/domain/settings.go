package domain

// NodeSettings is the tagged-union envelope the Settings Catalog variants
// ride in. Kind selects which internal/settings payload type Payload holds;
// domain never inspects Payload's shape directly, it only carries it.
type NodeSettings struct {
	FlowID       uint64
	NodeID       int64
	Kind         NodeKind
	PosX         float64
	PosY         float64
	Description  string
	CacheResults bool

	// Depending-on fields: which of these is populated is dictated by
	// ArityOf(Kind).
	DependingOnID      int64   // AritySingle; -1 if unset
	DependingOnIDs     []int64 // AritySet
	DependingOnIDLeft  int64   // ArityTwo; -1 if unset
	DependingOnIDRight int64   // ArityTwo; -1 if unset

	// Payload carries the kind-specific configuration (internal/settings
	// defines the concrete type per Kind). It participates in the
	// content-addressed hash; PosX/PosY/Description do not.
	Payload any
}

// NoParent is the sentinel value for an unset single-parent reference.
const NoParent int64 = -1

// NewNodeSettings builds a zero-input NodeSettings (parents left unset);
// callers wire DependingOn* afterward according to ArityOf(kind).
func NewNodeSettings(flowID uint64, nodeID int64, kind NodeKind, payload any) NodeSettings {
	return NodeSettings{
		FlowID:             flowID,
		NodeID:             nodeID,
		Kind:               kind,
		DependingOnID:      NoParent,
		DependingOnIDLeft:  NoParent,
		DependingOnIDRight: NoParent,
		Payload:            payload,
	}
}

// ParentIDs returns every node_id this settings record depends on, in a
// stable order: left, right, then main/set parents in listed order. Unset single
// parents (NoParent) are omitted.
func (s NodeSettings) ParentIDs() []int64 {
	var out []int64
	switch ArityOf(s.Kind) {
	case ArityTwo:
		if s.DependingOnIDLeft != NoParent {
			out = append(out, s.DependingOnIDLeft)
		}
		if s.DependingOnIDRight != NoParent {
			out = append(out, s.DependingOnIDRight)
		}
	case AritySet:
		out = append(out, s.DependingOnIDs...)
	case AritySingle:
		if s.DependingOnID != NoParent {
			out = append(out, s.DependingOnID)
		}
	case ArityZero:
		// no parents
	}
	return out
}

// hashablePayload is the subset of NodeSettings that participates in the
// content-addressed hash: the kind tag and the kind-specific payload.
// Parent identity is folded in separately via the resolved parent hashes,
// and UI-only fields (PosX, PosY, Description) and the depending_on_*
// wiring fields (graph structure, not settings payload) are excluded so
// layout edits and mere re-pointing to an unchanged parent never
// invalidate results.
type hashablePayload struct {
	Kind         NodeKind
	CacheResults bool
	Payload      any
}

func (s NodeSettings) forHash() hashablePayload {
	return hashablePayload{
		Kind:         s.Kind,
		CacheResults: s.CacheResults,
		Payload:      s.Payload,
	}
}

// Clone deep-copies the parent-id slice so mutating a copy never aliases
// the original (used by copy_node and by update_settings's UI-only diff).
func (s NodeSettings) Clone() NodeSettings {
	out := s
	if s.DependingOnIDs != nil {
		out.DependingOnIDs = append([]int64(nil), s.DependingOnIDs...)
	}
	return out
}

// EqualIgnoringUI reports whether a and b differ only in PosX/PosY/
// Description — i.e. whether persisting b over a must NOT reset the node.
// A Payload-only change (a different filter expression, a different select
// column list, …) must still report false: Payload is compared via its
// content hash rather than by field, since it is an `any` and cannot be
// compared with ==.
func (s NodeSettings) EqualIgnoringUI(other NodeSettings) bool {
	a, b := s, other
	a.PosX, a.PosY, a.Description = 0, 0, ""
	b.PosX, b.PosY, b.Description = 0, 0, ""
	if !equalSettingsCore(a, b) {
		return false
	}
	ha, err := HashSettingsContent(a)
	if err != nil {
		return false
	}
	hb, err := HashSettingsContent(b)
	if err != nil {
		return false
	}
	return ha == hb
}

func equalSettingsCore(a, b NodeSettings) bool {
	return a.FlowID == b.FlowID &&
		a.NodeID == b.NodeID &&
		a.Kind == b.Kind &&
		a.PosX == b.PosX &&
		a.PosY == b.PosY &&
		a.Description == b.Description &&
		a.CacheResults == b.CacheResults &&
		a.DependingOnID == b.DependingOnID &&
		a.DependingOnIDLeft == b.DependingOnIDLeft &&
		a.DependingOnIDRight == b.DependingOnIDRight &&
		int64SliceEqual(a.DependingOnIDs, b.DependingOnIDs)
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package chat

// SessionMarker identifies the server's current data epoch. Markers are only
// ever compared for equality; a change means the local dataset is stale
// beyond incremental repair.
type SessionMarker string

// IsZero reports whether no marker has been recorded yet.
func (m SessionMarker) IsZero() bool {
	return m == ""
}

func (m SessionMarker) String() string {
	return string(m)
}

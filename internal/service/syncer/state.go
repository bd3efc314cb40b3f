package syncer

// State is the engine's lifecycle position.
type State int

const (
	// Uninitialized: nothing has been fetched yet.
	Uninitialized State = iota
	// Loading: an initial load is running or the last attempt failed.
	Loading
	// Ready: the store holds a full dataset and polling may run.
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

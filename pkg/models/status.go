package models

// RecipeState is a recipe's position in the ingestion pipeline
type RecipeState string

const (
	StateUnset              RecipeState = ""
	StateDiscovered         RecipeState = "discovered"
	StateFetched            RecipeState = "fetched"
	StateParsed             RecipeState = "parsed"
	StateRejected           RecipeState = "rejected"
	StatePersisted          RecipeState = "persisted"
	StateCategoriesAttached RecipeState = "categories_attached"
	StateImageResolved      RecipeState = "image_resolved"
	StateSearchIndexed      RecipeState = "search_indexed"
)

// AllStates lists every recipe state in pipeline order
var AllStates = []RecipeState{
	StateDiscovered,
	StateFetched,
	StateParsed,
	StateRejected,
	StatePersisted,
	StateCategoriesAttached,
	StateImageResolved,
	StateSearchIndexed,
}

// stateRank orders states along the happy path. Rejected sits beside parsed.
var stateRank = map[RecipeState]int{
	StateUnset:              0,
	StateDiscovered:         1,
	StateFetched:            2,
	StateParsed:             3,
	StateRejected:           3,
	StatePersisted:          4,
	StateCategoriesAttached: 5,
	StateImageResolved:      6,
	StateSearchIndexed:      7,
}

// String implements fmt.Stringer for logging
func (s RecipeState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the state is a known operational value
func (s RecipeState) IsValid() bool {
	_, ok := stateRank[s]
	return ok && s != StateUnset
}

// IsPersisted reports whether the recipe has reached the store
func (s RecipeState) IsPersisted() bool {
	return stateRank[s] >= stateRank[StatePersisted]
}

// CanTransition reports whether moving from s to next is allowed.
// Once persisted, a recipe never falls back below persisted; re-running a stage on a
// persisted recipe keeps it where it is. A rejected recipe may be fetched and parsed again
// on a later run.
func (s RecipeState) CanTransition(next RecipeState) bool {
	if !next.IsValid() {
		return false
	}
	if s.IsPersisted() {
		return next.IsPersisted()
	}
	return true
}

// Advance returns the state a ledger should record when next is reported for a recipe at s.
// Persisted-or-later recipes keep the furthest state reached; earlier recipes take next.
func (s RecipeState) Advance(next RecipeState) RecipeState {
	if !s.CanTransition(next) {
		return s
	}
	if s.IsPersisted() && stateRank[next] < stateRank[s] {
		return s
	}
	return next
}

// ImageStatus is the outcome of the last image acquisition attempt for a recipe
type ImageStatus string

const (
	ImageStatusUnset       ImageStatus = ""
	ImageStatusSuccess     ImageStatus = "success"
	ImageStatusFailure     ImageStatus = "failure"
	ImageStatusPlaceholder ImageStatus = "placeholder" // Source pointed at a generic placeholder asset
	ImageStatusSkipped     ImageStatus = "skipped"     // Already attached, no source, or recipe not stored
)

// String implements fmt.Stringer for logging
func (s ImageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

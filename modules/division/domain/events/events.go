// Package events holds the lifecycle events the division module publishes
// on its event bus after a mutation has been committed.
package events

type DivisionCreated struct {
	ID       int64
	Code     string
	ParentID *int64
}

type DivisionUpdated struct {
	ID   int64
	Code string
}

type DivisionDeleted struct {
	ID   int64
	Soft bool
}

type DivisionRestored struct {
	ID   int64
	Code string
}

type DivisionMoved struct {
	ID          int64
	OldParentID *int64
	NewParentID *int64
}

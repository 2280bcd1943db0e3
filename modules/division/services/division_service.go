package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/orgforge/divisions/modules/division/domain/events"
	"github.com/orgforge/divisions/pkg/composables"
	"github.com/orgforge/divisions/pkg/eventbus"
)

// Division is a node in the organizational hierarchy tree. ParentID nil
// means the division is a root. Soft-deleted rows keep their data but are
// excluded from default queries.
type Division struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	ShortName  *string   `json:"short_name"`
	ParentID   *int64    `json:"parent_id"`
	SortOrder  int       `json:"sort_order"`
	IsInternal bool      `json:"is_internal"`
	IsActive   bool      `json:"is_active"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SearchFilters struct {
	// Query is matched case-insensitively as a substring against code,
	// name and short_name.
	Query          string
	IncludeDeleted bool
	ActiveOnly     bool
	Skip           int
	// Limit <= 0 disables pagination.
	Limit int
}

type DivisionRepository interface {
	// Find returns nil, nil when no division matches.
	Find(ctx context.Context, id int64, includeDeleted bool) (*Division, error)
	// FindByCode matches code case-insensitively and returns nil, nil when
	// no division matches.
	FindByCode(ctx context.Context, code string, includeDeleted bool) (*Division, error)
	// FindByParent returns direct children ordered by (sort_order, name).
	// A nil parentID selects root divisions.
	FindByParent(ctx context.Context, parentID *int64, includeDeleted bool) ([]Division, error)
	FindRoots(ctx context.Context, includeDeleted bool) ([]Division, error)
	Search(ctx context.Context, filters SearchFilters) ([]Division, error)
	// MaxSortOrder reports the maximum sort_order among non-deleted
	// divisions sharing parentID; ok is false when the group is empty.
	MaxSortOrder(ctx context.Context, parentID *int64) (max int, ok bool, err error)
	CountChildren(ctx context.Context, id int64) (int, error)
	// Count counts all divisions, deleted included.
	Count(ctx context.Context) (int, error)
	// ActiveCodes returns codes of active non-deleted divisions in
	// ascending order, optionally filtered by prefix.
	ActiveCodes(ctx context.Context, prefix string) ([]string, error)
	Insert(ctx context.Context, d *Division) (*Division, error)
	Update(ctx context.Context, d *Division) error
	SetSortOrder(ctx context.Context, id int64, sortOrder int) error
	// Delete removes the row permanently.
	Delete(ctx context.Context, id int64) error
}

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Meta    map[string]any
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func errNotFound(id int64) *ServiceError {
	return newServiceError(http.StatusNotFound, "DIVISION_NOT_FOUND", fmt.Sprintf("division %d not found", id), nil)
}

func errCodeExists(code string) *ServiceError {
	return newServiceError(http.StatusBadRequest, "DIVISION_CODE_EXISTS", fmt.Sprintf("division code %q already exists", code), nil)
}

func errParentNotFound(parentID int64) *ServiceError {
	return newServiceError(http.StatusBadRequest, "DIVISION_PARENT_NOT_FOUND", fmt.Sprintf("parent division %d not found", parentID), nil)
}

func errSelfParent() *ServiceError {
	return newServiceError(http.StatusBadRequest, "DIVISION_SELF_PARENT", "division cannot be its own parent", nil)
}

func errCircularReference() *ServiceError {
	return newServiceError(http.StatusBadRequest, "DIVISION_CIRCULAR_REFERENCE", "move would create a cycle in the hierarchy", nil)
}

func errHasChildren(count int) *ServiceError {
	return &ServiceError{
		Status:  http.StatusBadRequest,
		Code:    "DIVISION_HAS_CHILDREN",
		Message: fmt.Sprintf("division has %d non-deleted children", count),
		Meta:    map[string]any{"children": count},
	}
}

func errNotDeleted(id int64) *ServiceError {
	return newServiceError(http.StatusBadRequest, "DIVISION_NOT_DELETED", fmt.Sprintf("division %d is not deleted", id), nil)
}

func errHierarchyCorrupt() *ServiceError {
	return newServiceError(http.StatusInternalServerError, "DIVISION_HIERARCHY_CORRUPT", "parent chain exceeds total division count", nil)
}

type DivisionService struct {
	repo      DivisionRepository
	publisher eventbus.EventBus
}

func NewDivisionService(repo DivisionRepository, publisher eventbus.EventBus) *DivisionService {
	return &DivisionService{repo: repo, publisher: publisher}
}

func (s *DivisionService) publish(event interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// normalizeParent treats a zero parent id as "make root".
func normalizeParent(parentID *int64) *int64 {
	if parentID != nil && *parentID == 0 {
		return nil
	}
	return parentID
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *DivisionService) Search(ctx context.Context, filters SearchFilters) ([]Division, error) {
	divisions, err := s.repo.Search(ctx, filters)
	if err != nil {
		return nil, mapPgError(err)
	}
	return divisions, nil
}

func (s *DivisionService) GetByID(ctx context.Context, id int64, includeDeleted bool) (*Division, error) {
	div, err := s.repo.Find(ctx, id, includeDeleted)
	if err != nil {
		return nil, mapPgError(err)
	}
	if div == nil {
		return nil, errNotFound(id)
	}
	return div, nil
}

func (s *DivisionService) GetByCode(ctx context.Context, code string, includeDeleted bool) (*Division, error) {
	div, err := s.repo.FindByCode(ctx, normalizeCode(code), includeDeleted)
	if err != nil {
		return nil, mapPgError(err)
	}
	if div == nil {
		return nil, newServiceError(http.StatusNotFound, "DIVISION_NOT_FOUND", fmt.Sprintf("division with code %q not found", code), nil)
	}
	return div, nil
}

type CreateDivisionInput struct {
	Code       string
	Name       string
	ShortName  *string
	ParentID   *int64
	SortOrder  int
	IsInternal bool
	IsActive   bool
}

func (s *DivisionService) Create(ctx context.Context, in CreateDivisionInput) (*Division, error) {
	code := normalizeCode(in.Code)
	name := strings.TrimSpace(in.Name)
	if code == "" || name == "" {
		return nil, newServiceError(http.StatusBadRequest, "DIVISION_INVALID_BODY", "code and name are required", nil)
	}
	parentID := normalizeParent(in.ParentID)

	div, err := inTx(ctx, func(txCtx context.Context) (*Division, error) {
		existing, err := s.repo.FindByCode(txCtx, code, false)
		if err != nil {
			return nil, mapPgError(err)
		}
		if existing != nil {
			return nil, errCodeExists(code)
		}

		if parentID != nil {
			// Parent existence is checked against all rows, deleted included.
			parent, err := s.repo.Find(txCtx, *parentID, true)
			if err != nil {
				return nil, mapPgError(err)
			}
			if parent == nil {
				return nil, errParentNotFound(*parentID)
			}
		}

		sortOrder := in.SortOrder
		if sortOrder <= 0 {
			sortOrder, err = s.nextSortOrder(txCtx, parentID)
			if err != nil {
				return nil, err
			}
		}

		now := time.Now().UTC()
		created, err := s.repo.Insert(txCtx, &Division{
			Code:       code,
			Name:       name,
			ShortName:  in.ShortName,
			ParentID:   parentID,
			SortOrder:  sortOrder,
			IsInternal: in.IsInternal,
			IsActive:   in.IsActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return nil, mapPgError(err)
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	recordMutation("create")
	s.publish(events.DivisionCreated{ID: div.ID, Code: div.Code, ParentID: div.ParentID})
	return div, nil
}

// UpdateDivisionPatch carries partial-update semantics: nil fields are left
// untouched. Double pointers distinguish "clear" (set to nil) from "absent".
type UpdateDivisionPatch struct {
	Code       *string
	Name       *string
	ShortName  **string
	ParentID   **int64
	SortOrder  *int
	IsInternal *bool
	IsActive   *bool
	IsDeleted  *bool
}

func (s *DivisionService) Update(ctx context.Context, id int64, patch UpdateDivisionPatch) (*Division, error) {
	div, err := inTx(ctx, func(txCtx context.Context) (*Division, error) {
		return s.applyUpdate(txCtx, id, patch, false)
	})
	if err != nil {
		return nil, err
	}

	recordMutation("update")
	s.publish(events.DivisionUpdated{ID: div.ID, Code: div.Code})
	return div, nil
}

func (s *DivisionService) applyUpdate(ctx context.Context, id int64, patch UpdateDivisionPatch, includeDeleted bool) (*Division, error) {
	div, err := s.repo.Find(ctx, id, includeDeleted)
	if err != nil {
		return nil, mapPgError(err)
	}
	if div == nil {
		return nil, errNotFound(id)
	}

	if patch.Code != nil {
		code := normalizeCode(*patch.Code)
		if code == "" {
			return nil, newServiceError(http.StatusBadRequest, "DIVISION_INVALID_BODY", "code cannot be empty", nil)
		}
		if code != normalizeCode(div.Code) {
			existing, err := s.repo.FindByCode(ctx, code, false)
			if err != nil {
				return nil, mapPgError(err)
			}
			if existing != nil && existing.ID != div.ID {
				return nil, errCodeExists(code)
			}
		}
		div.Code = code
	}

	if patch.ParentID != nil {
		newParent := normalizeParent(*patch.ParentID)
		if newParent != nil {
			if *newParent == id {
				return nil, errSelfParent()
			}
			parent, err := s.repo.Find(ctx, *newParent, true)
			if err != nil {
				return nil, mapPgError(err)
			}
			if parent == nil {
				return nil, errParentNotFound(*newParent)
			}
			if err := s.ensureNoCycle(ctx, id, *newParent); err != nil {
				return nil, err
			}
		}
		div.ParentID = newParent
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, newServiceError(http.StatusBadRequest, "DIVISION_INVALID_BODY", "name cannot be empty", nil)
		}
		div.Name = name
	}
	if patch.ShortName != nil {
		div.ShortName = *patch.ShortName
	}
	if patch.SortOrder != nil {
		div.SortOrder = *patch.SortOrder
	}
	if patch.IsInternal != nil {
		div.IsInternal = *patch.IsInternal
	}
	if patch.IsActive != nil {
		div.IsActive = *patch.IsActive
	}
	if patch.IsDeleted != nil {
		div.IsDeleted = *patch.IsDeleted
	}

	div.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, div); err != nil {
		return nil, mapPgError(err)
	}
	return div, nil
}

func (s *DivisionService) Delete(ctx context.Context, id int64, soft bool) error {
	_, err := inTx(ctx, func(txCtx context.Context) (struct{}, error) {
		div, err := s.repo.Find(txCtx, id, false)
		if err != nil {
			return struct{}{}, mapPgError(err)
		}
		if div == nil {
			return struct{}{}, errNotFound(id)
		}

		children, err := s.repo.CountChildren(txCtx, id)
		if err != nil {
			return struct{}{}, mapPgError(err)
		}
		if children > 0 {
			return struct{}{}, errHasChildren(children)
		}

		if soft {
			div.IsDeleted = true
			div.UpdatedAt = time.Now().UTC()
			if err := s.repo.Update(txCtx, div); err != nil {
				return struct{}{}, mapPgError(err)
			}
			return struct{}{}, nil
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return struct{}{}, mapPgError(err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	recordMutation("delete")
	s.publish(events.DivisionDeleted{ID: id, Soft: soft})
	return nil
}

func (s *DivisionService) Restore(ctx context.Context, id int64) (*Division, error) {
	div, err := inTx(ctx, func(txCtx context.Context) (*Division, error) {
		current, err := s.repo.Find(txCtx, id, true)
		if err != nil {
			return nil, mapPgError(err)
		}
		if current == nil {
			return nil, errNotFound(id)
		}
		if !current.IsDeleted {
			return nil, errNotDeleted(id)
		}

		// The code may have been claimed by another division while this
		// one was deleted.
		existing, err := s.repo.FindByCode(txCtx, current.Code, false)
		if err != nil {
			return nil, mapPgError(err)
		}
		if existing != nil && existing.ID != id {
			return nil, errCodeExists(current.Code)
		}

		restored := false
		return s.applyUpdate(txCtx, id, UpdateDivisionPatch{IsDeleted: &restored}, true)
	})
	if err != nil {
		return nil, err
	}

	recordMutation("restore")
	s.publish(events.DivisionRestored{ID: div.ID, Code: div.Code})
	return div, nil
}

func (s *DivisionService) GetChildren(ctx context.Context, parentID int64, includeDeleted bool) ([]Division, error) {
	parent, err := s.repo.Find(ctx, parentID, includeDeleted)
	if err != nil {
		return nil, mapPgError(err)
	}
	if parent == nil {
		return nil, errNotFound(parentID)
	}

	children, err := s.repo.FindByParent(ctx, &parentID, includeDeleted)
	if err != nil {
		return nil, mapPgError(err)
	}
	return children, nil
}

// GetHierarchyTree returns the root followed by all its descendants in
// depth-first pre-order. Without a root it lists top-level divisions only,
// without expanding children.
func (s *DivisionService) GetHierarchyTree(ctx context.Context, rootID *int64) ([]Division, error) {
	if rootID == nil {
		roots, err := s.repo.FindRoots(ctx, false)
		if err != nil {
			return nil, mapPgError(err)
		}
		return roots, nil
	}

	root, err := s.repo.Find(ctx, *rootID, false)
	if err != nil {
		return nil, mapPgError(err)
	}
	if root == nil {
		return []Division{}, nil
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}

	out := make([]Division, 0, 16)
	visited := make(map[int64]struct{})
	stack := []Division{*root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[node.ID]; seen {
			continue
		}
		visited[node.ID] = struct{}{}
		if len(out) >= total+1 {
			return nil, errHierarchyCorrupt()
		}
		out = append(out, node)

		children, err := s.repo.FindByParent(ctx, &node.ID, false)
		if err != nil {
			return nil, mapPgError(err)
		}
		// Push in reverse so the first sibling is visited first.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out, nil
}

func (s *DivisionService) Move(ctx context.Context, id int64, newParentID *int64, newSortOrder *int) (*Division, error) {
	type moveResult struct {
		div       *Division
		oldParent *int64
	}

	res, err := inTx(ctx, func(txCtx context.Context) (moveResult, error) {
		div, err := s.repo.Find(txCtx, id, false)
		if err != nil {
			return moveResult{}, mapPgError(err)
		}
		if div == nil {
			return moveResult{}, errNotFound(id)
		}

		var oldParent *int64
		if div.ParentID != nil {
			v := *div.ParentID
			oldParent = &v
		}

		newParent := normalizeParent(newParentID)
		if newParent != nil {
			if *newParent == id {
				return moveResult{}, errSelfParent()
			}
			if err := s.ensureNoCycle(txCtx, id, *newParent); err != nil {
				return moveResult{}, err
			}
		}

		div.ParentID = newParent
		if newSortOrder != nil {
			div.SortOrder = *newSortOrder
		} else {
			so, err := s.nextSortOrder(txCtx, newParent)
			if err != nil {
				return moveResult{}, err
			}
			div.SortOrder = so
		}
		div.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(txCtx, div); err != nil {
			return moveResult{}, mapPgError(err)
		}

		// Close sort_order gaps in the group the division left.
		if !sameParent(oldParent, newParent) {
			if err := s.reorderSiblings(txCtx, oldParent); err != nil {
				return moveResult{}, err
			}
		}
		return moveResult{div: div, oldParent: oldParent}, nil
	})
	if err != nil {
		return nil, err
	}

	recordMutation("move")
	s.publish(events.DivisionMoved{ID: res.div.ID, OldParentID: res.oldParent, NewParentID: res.div.ParentID})
	return res.div, nil
}

func (s *DivisionService) AvailableCodes(ctx context.Context, prefix string) ([]string, error) {
	codes, err := s.repo.ActiveCodes(ctx, normalizeCode(prefix))
	if err != nil {
		return nil, mapPgError(err)
	}
	return codes, nil
}

func (s *DivisionService) Suggest(ctx context.Context, query string, limit int) ([]Division, error) {
	divisions, err := s.repo.Search(ctx, SearchFilters{
		Query:      strings.TrimSpace(query),
		ActiveOnly: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return divisions, nil
}

func (s *DivisionService) nextSortOrder(ctx context.Context, parentID *int64) (int, error) {
	max, ok, err := s.repo.MaxSortOrder(ctx, parentID)
	if err != nil {
		return 0, mapPgError(err)
	}
	if !ok {
		return 10, nil
	}
	return max + 10, nil
}

func (s *DivisionService) reorderSiblings(ctx context.Context, parentID *int64) error {
	siblings, err := s.repo.FindByParent(ctx, parentID, false)
	if err != nil {
		return mapPgError(err)
	}
	for i := range siblings {
		want := (i + 1) * 10
		if siblings[i].SortOrder == want {
			continue
		}
		if err := s.repo.SetSortOrder(ctx, siblings[i].ID, want); err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

// ensureNoCycle walks the parent chain upward from newParentID. Reaching
// id means the assignment would close a cycle. A broken link terminates
// the walk as if a root was reached. The walk is capped at the total
// division count to survive already-corrupted data.
func (s *DivisionService) ensureNoCycle(ctx context.Context, id, newParentID int64) error {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return mapPgError(err)
	}

	current := newParentID
	for steps := 0; ; steps++ {
		if steps > total {
			return errHierarchyCorrupt()
		}
		if current == id {
			return errCircularReference()
		}
		node, err := s.repo.Find(ctx, current, true)
		if err != nil {
			return mapPgError(err)
		}
		if node == nil || node.ParentID == nil {
			return nil
		}
		current = *node.ParentID
	}
}

// inTx runs fn inside a single transaction so validation reads and writes
// commit atomically. Without a pool in the context fn runs directly against
// the repository, which then provides its own consistency.
func inTx[T any](ctx context.Context, fn func(txCtx context.Context) (T, error)) (T, error) {
	var zero T

	pool, err := composables.UsePool(ctx)
	if err != nil {
		if errors.Is(err, composables.ErrNoPool) {
			return fn(ctx)
		}
		return zero, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out, err := fn(composables.WithTx(ctx, tx))
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, mapPgError(err)
	}
	return out, nil
}

package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/orgforge/divisions/modules/division/services"
)

// MemoryDivisionRepository is a mutex-guarded in-memory implementation of
// the division repository. It mirrors the SQL repository's semantics
// (case-insensitive code matching, (sort_order, name) sibling ordering,
// soft-delete filtering) and backs tests and local development without a
// database.
type MemoryDivisionRepository struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*services.Division
}

var _ services.DivisionRepository = (*MemoryDivisionRepository)(nil)

func NewMemoryDivisionRepository() *MemoryDivisionRepository {
	return &MemoryDivisionRepository{nextID: 1, items: make(map[int64]*services.Division)}
}

func cloneDivision(d *services.Division) *services.Division {
	out := *d
	if d.ShortName != nil {
		v := *d.ShortName
		out.ShortName = &v
	}
	if d.ParentID != nil {
		v := *d.ParentID
		out.ParentID = &v
	}
	return &out
}

func sortSiblings(divisions []services.Division) {
	sort.SliceStable(divisions, func(i, j int) bool {
		if divisions[i].SortOrder != divisions[j].SortOrder {
			return divisions[i].SortOrder < divisions[j].SortOrder
		}
		return divisions[i].Name < divisions[j].Name
	})
}

func (r *MemoryDivisionRepository) Find(_ context.Context, id int64, includeDeleted bool) (*services.Division, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok || (!includeDeleted && d.IsDeleted) {
		return nil, nil
	}
	return cloneDivision(d), nil
}

func (r *MemoryDivisionRepository) FindByCode(_ context.Context, code string, includeDeleted bool) (*services.Division, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.items {
		if !includeDeleted && d.IsDeleted {
			continue
		}
		if strings.EqualFold(d.Code, code) {
			return cloneDivision(d), nil
		}
	}
	return nil, nil
}

func (r *MemoryDivisionRepository) FindByParent(_ context.Context, parentID *int64, includeDeleted bool) ([]services.Division, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]services.Division, 0)
	for _, d := range r.items {
		if !includeDeleted && d.IsDeleted {
			continue
		}
		if parentID == nil {
			if d.ParentID != nil {
				continue
			}
		} else if d.ParentID == nil || *d.ParentID != *parentID {
			continue
		}
		out = append(out, *cloneDivision(d))
	}
	sortSiblings(out)
	return out, nil
}

func (r *MemoryDivisionRepository) FindRoots(ctx context.Context, includeDeleted bool) ([]services.Division, error) {
	return r.FindByParent(ctx, nil, includeDeleted)
}

func (r *MemoryDivisionRepository) Search(_ context.Context, filters services.SearchFilters) ([]services.Division, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	query := strings.ToLower(strings.TrimSpace(filters.Query))
	out := make([]services.Division, 0)
	for _, d := range r.items {
		if !filters.IncludeDeleted && d.IsDeleted {
			continue
		}
		if filters.ActiveOnly && !d.IsActive {
			continue
		}
		if query != "" {
			shortName := ""
			if d.ShortName != nil {
				shortName = *d.ShortName
			}
			if !strings.Contains(strings.ToLower(d.Code), query) &&
				!strings.Contains(strings.ToLower(d.Name), query) &&
				!strings.Contains(strings.ToLower(shortName), query) {
				continue
			}
		}
		out = append(out, *cloneDivision(d))
	}
	sortSiblings(out)

	if filters.Limit > 0 {
		if filters.Skip >= len(out) {
			return []services.Division{}, nil
		}
		out = out[filters.Skip:]
		if len(out) > filters.Limit {
			out = out[:filters.Limit]
		}
	}
	return out, nil
}

func (r *MemoryDivisionRepository) MaxSortOrder(ctx context.Context, parentID *int64) (int, bool, error) {
	siblings, err := r.FindByParent(ctx, parentID, false)
	if err != nil {
		return 0, false, err
	}
	if len(siblings) == 0 {
		return 0, false, nil
	}
	max := siblings[0].SortOrder
	for _, s := range siblings[1:] {
		if s.SortOrder > max {
			max = s.SortOrder
		}
	}
	return max, true, nil
}

func (r *MemoryDivisionRepository) CountChildren(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, d := range r.items {
		if d.IsDeleted || d.ParentID == nil {
			continue
		}
		if *d.ParentID == id {
			count++
		}
	}
	return count, nil
}

func (r *MemoryDivisionRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items), nil
}

func (r *MemoryDivisionRepository) ActiveCodes(_ context.Context, prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, 0)
	for _, d := range r.items {
		if d.IsDeleted || !d.IsActive {
			continue
		}
		if prefix != "" && !strings.HasPrefix(d.Code, prefix) {
			continue
		}
		codes = append(codes, d.Code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (r *MemoryDivisionRepository) Insert(_ context.Context, d *services.Division) (*services.Division, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := cloneDivision(d)
	stored.ID = r.nextID
	r.nextID++
	r.items[stored.ID] = stored
	return cloneDivision(stored), nil
}

func (r *MemoryDivisionRepository) Update(_ context.Context, d *services.Division) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[d.ID] = cloneDivision(d)
	return nil
}

func (r *MemoryDivisionRepository) SetSortOrder(_ context.Context, id int64, sortOrder int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.items[id]; ok {
		d.SortOrder = sortOrder
	}
	return nil
}

func (r *MemoryDivisionRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

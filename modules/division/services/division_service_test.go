package services_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/orgforge/divisions/modules/division/domain/events"
	"github.com/orgforge/divisions/modules/division/infrastructure/persistence"
	"github.com/orgforge/divisions/modules/division/services"
	"github.com/orgforge/divisions/pkg/eventbus"
)

func newTestService() (*services.DivisionService, *persistence.MemoryDivisionRepository) {
	repo := persistence.NewMemoryDivisionRepository()
	return services.NewDivisionService(repo, nil), repo
}

func i64(v int64) *int64 { return &v }

func str(v string) *string { return &v }

func num(v int) *int { return &v }

func mustCreate(t *testing.T, svc *services.DivisionService, in services.CreateDivisionInput) *services.Division {
	t.Helper()
	in.IsActive = true
	div, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	return div
}

func requireServiceError(t *testing.T, err error, status int, code string) *services.ServiceError {
	t.Helper()
	var svcErr *services.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, status, svcErr.Status)
	require.Equal(t, code, svcErr.Code)
	return svcErr
}

func TestCreate_AssignsDefaultSortOrder(t *testing.T) {
	svc, _ := newTestService()

	first := mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters"})
	require.Equal(t, 10, first.SortOrder)

	second := mustCreate(t, svc, services.CreateDivisionInput{Code: "OPS", Name: "Operations"})
	require.Equal(t, 20, second.SortOrder)
}

func TestCreate_NextSortOrderSkipsGaps(t *testing.T) {
	svc, _ := newTestService()

	mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A", SortOrder: 30})
	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "B"})
	require.Equal(t, 40, div.SortOrder)
}

func TestCreate_KeepsExplicitSortOrder(t *testing.T) {
	svc, _ := newTestService()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A", SortOrder: 55})
	require.Equal(t, 55, div.SortOrder)
}

func TestCreate_UppercasesCode(t *testing.T) {
	svc, _ := newTestService()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: " ops ", Name: "Operations"})
	require.Equal(t, "OPS", div.Code)
}

func TestCreate_DuplicateCodeFailsRegardlessOfCase(t *testing.T) {
	svc, _ := newTestService()

	mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters"})
	_, err := svc.Create(context.Background(), services.CreateDivisionInput{Code: "hq", Name: "Other", IsActive: true})
	requireServiceError(t, err, 400, "DIVISION_CODE_EXISTS")
}

func TestCreate_AllowsCodeOfSoftDeletedDivision(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	old := mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters"})
	require.NoError(t, svc.Delete(ctx, old.ID, true))

	div, err := svc.Create(ctx, services.CreateDivisionInput{Code: "HQ", Name: "New Headquarters", IsActive: true})
	require.NoError(t, err)
	require.NotEqual(t, old.ID, div.ID)
}

func TestCreate_ParentNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), services.CreateDivisionInput{Code: "A", Name: "A", ParentID: i64(99), IsActive: true})
	requireServiceError(t, err, 400, "DIVISION_PARENT_NOT_FOUND")
}

func TestCreate_ParentMayBeSoftDeleted(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "Parent"})
	require.NoError(t, svc.Delete(ctx, parent.ID, true))

	child, err := svc.Create(ctx, services.CreateDivisionInput{Code: "C", Name: "Child", ParentID: i64(parent.ID), IsActive: true})
	require.NoError(t, err)
	require.Equal(t, parent.ID, *child.ParentID)
}

func TestUpdate_PartialPatchLeavesOtherFieldsUntouched(t *testing.T) {
	svc, _ := newTestService()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha", ShortName: str("AL")})

	updated, err := svc.Update(context.Background(), div.ID, services.UpdateDivisionPatch{Name: str("Alpha Division")})
	require.NoError(t, err)
	require.Equal(t, "Alpha Division", updated.Name)
	require.Equal(t, "A", updated.Code)
	require.NotNil(t, updated.ShortName)
	require.Equal(t, "AL", *updated.ShortName)
}

func TestUpdate_ClearsShortName(t *testing.T) {
	svc, _ := newTestService()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha", ShortName: str("AL")})

	var cleared *string
	updated, err := svc.Update(context.Background(), div.ID, services.UpdateDivisionPatch{ShortName: &cleared})
	require.NoError(t, err)
	require.Nil(t, updated.ShortName)
}

func TestUpdate_SelfParent(t *testing.T) {
	svc, _ := newTestService()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha"})

	parent := i64(div.ID)
	_, err := svc.Update(context.Background(), div.ID, services.UpdateDivisionPatch{ParentID: &parent})
	requireServiceError(t, err, 400, "DIVISION_SELF_PARENT")
}

func TestUpdate_CodeExists(t *testing.T) {
	svc, _ := newTestService()

	mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha"})
	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "Beta"})

	_, err := svc.Update(context.Background(), div.ID, services.UpdateDivisionPatch{Code: str("a")})
	requireServiceError(t, err, 400, "DIVISION_CODE_EXISTS")
}

func TestUpdate_ZeroParentMakesRoot(t *testing.T) {
	svc, _ := newTestService()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "Parent"})
	child := mustCreate(t, svc, services.CreateDivisionInput{Code: "C", Name: "Child", ParentID: i64(parent.ID)})

	zero := i64(0)
	updated, err := svc.Update(context.Background(), child.ID, services.UpdateDivisionPatch{ParentID: &zero})
	require.NoError(t, err)
	require.Nil(t, updated.ParentID)
}

func TestUpdate_NotFoundOnSoftDeleted(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha"})
	require.NoError(t, svc.Delete(ctx, div.ID, true))

	_, err := svc.Update(ctx, div.ID, services.UpdateDivisionPatch{Name: str("New")})
	requireServiceError(t, err, 404, "DIVISION_NOT_FOUND")
}

func TestMove_CircularReference(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A"})
	b := mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "B", ParentID: i64(a.ID)})
	c := mustCreate(t, svc, services.CreateDivisionInput{Code: "C", Name: "C", ParentID: i64(b.ID)})

	_, err := svc.Move(ctx, a.ID, i64(c.ID), nil)
	requireServiceError(t, err, 400, "DIVISION_CIRCULAR_REFERENCE")
}

func TestMove_SelfParent(t *testing.T) {
	svc, _ := newTestService()

	a := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A"})
	_, err := svc.Move(context.Background(), a.ID, i64(a.ID), nil)
	requireServiceError(t, err, 400, "DIVISION_SELF_PARENT")
}

func TestMove_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Move(context.Background(), 42, nil, nil)
	requireServiceError(t, err, 404, "DIVISION_NOT_FOUND")
}

func TestMove_ReordersOldSiblingsOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	oldParent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P1", Name: "P1"})
	newParent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P2", Name: "P2"})
	a := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A", ParentID: i64(oldParent.ID), SortOrder: 10})
	b := mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "B", ParentID: i64(oldParent.ID), SortOrder: 25})
	c := mustCreate(t, svc, services.CreateDivisionInput{Code: "C", Name: "C", ParentID: i64(oldParent.ID), SortOrder: 40})
	existing := mustCreate(t, svc, services.CreateDivisionInput{Code: "X", Name: "X", ParentID: i64(newParent.ID), SortOrder: 7})

	moved, err := svc.Move(ctx, b.ID, i64(newParent.ID), nil)
	require.NoError(t, err)
	require.Equal(t, newParent.ID, *moved.ParentID)
	require.Equal(t, 17, moved.SortOrder)

	// Gaps in the old group close to a clean 10/20 sequence.
	remaining, err := svc.GetChildren(ctx, oldParent.ID, false)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.Equal(t, a.ID, remaining[0].ID)
	require.Equal(t, 10, remaining[0].SortOrder)
	require.Equal(t, c.ID, remaining[1].ID)
	require.Equal(t, 20, remaining[1].SortOrder)

	// The new group is never renumbered.
	got, err := svc.GetByID(ctx, existing.ID, false)
	require.NoError(t, err)
	require.Equal(t, 7, got.SortOrder)
}

func TestMove_ExplicitSortOrder(t *testing.T) {
	svc, _ := newTestService()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "P"})
	a := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A"})

	moved, err := svc.Move(context.Background(), a.ID, i64(parent.ID), num(5))
	require.NoError(t, err)
	require.Equal(t, 5, moved.SortOrder)
}

func TestMove_SameParentSkipsReorder(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "P"})
	a := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A", ParentID: i64(parent.ID), SortOrder: 10})
	b := mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "B", ParentID: i64(parent.ID), SortOrder: 25})

	moved, err := svc.Move(ctx, b.ID, i64(parent.ID), nil)
	require.NoError(t, err)
	require.Equal(t, 35, moved.SortOrder)

	got, err := svc.GetByID(ctx, a.ID, false)
	require.NoError(t, err)
	require.Equal(t, 10, got.SortOrder)
}

func TestMove_ZeroParentMakesRoot(t *testing.T) {
	svc, _ := newTestService()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "P"})
	child := mustCreate(t, svc, services.CreateDivisionInput{Code: "C", Name: "C", ParentID: i64(parent.ID)})

	moved, err := svc.Move(context.Background(), child.ID, i64(0), nil)
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)
}

func TestMove_CorruptedChainFailsFast(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	a := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A"})
	b := mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "B"})
	c := mustCreate(t, svc, services.CreateDivisionInput{Code: "C", Name: "C"})

	// Corrupt the store directly: A and B point at each other.
	stored, err := repo.Find(ctx, a.ID, true)
	require.NoError(t, err)
	stored.ParentID = i64(b.ID)
	require.NoError(t, repo.Update(ctx, stored))
	stored, err = repo.Find(ctx, b.ID, true)
	require.NoError(t, err)
	stored.ParentID = i64(a.ID)
	require.NoError(t, repo.Update(ctx, stored))

	_, err = svc.Move(ctx, c.ID, i64(a.ID), nil)
	requireServiceError(t, err, 500, "DIVISION_HIERARCHY_CORRUPT")
}

func TestDelete_HasChildrenCarriesCount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "P"})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "C1", Name: "C1", ParentID: i64(parent.ID)})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "C2", Name: "C2", ParentID: i64(parent.ID)})

	err := svc.Delete(ctx, parent.ID, true)
	svcErr := requireServiceError(t, err, 400, "DIVISION_HAS_CHILDREN")
	require.Equal(t, 2, svcErr.Meta["children"])
}

func TestDelete_SoftDeletedChildrenDoNotBlock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "P"})
	child := mustCreate(t, svc, services.CreateDivisionInput{Code: "C", Name: "C", ParentID: i64(parent.ID)})

	require.NoError(t, svc.Delete(ctx, child.ID, true))
	require.NoError(t, svc.Delete(ctx, parent.ID, true))
}

func TestDelete_SoftThenRestoreRoundTrips(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha", ShortName: str("AL"), SortOrder: 30})
	require.NoError(t, svc.Delete(ctx, div.ID, true))

	deleted, err := svc.GetByID(ctx, div.ID, true)
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted)

	restored, err := svc.Restore(ctx, div.ID)
	require.NoError(t, err)
	require.False(t, restored.IsDeleted)
	require.Equal(t, div.Code, restored.Code)
	require.Equal(t, div.Name, restored.Name)
	require.Equal(t, *div.ShortName, *restored.ShortName)
	require.Equal(t, div.SortOrder, restored.SortOrder)
}

func TestDelete_HardRemovesRow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha"})
	require.NoError(t, svc.Delete(ctx, div.ID, false))

	_, err := svc.GetByID(ctx, div.ID, true)
	requireServiceError(t, err, 404, "DIVISION_NOT_FOUND")
}

func TestRestore_NotDeleted(t *testing.T) {
	svc, _ := newTestService()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha"})
	_, err := svc.Restore(context.Background(), div.ID)
	requireServiceError(t, err, 400, "DIVISION_NOT_DELETED")
}

func TestRestore_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Restore(context.Background(), 42)
	requireServiceError(t, err, 404, "DIVISION_NOT_FOUND")
}

func TestRestore_BlockedWhenCodeReclaimed(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	old := mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters"})
	require.NoError(t, svc.Delete(ctx, old.ID, true))
	mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "New Headquarters"})

	_, err := svc.Restore(ctx, old.ID)
	requireServiceError(t, err, 400, "DIVISION_CODE_EXISTS")
}

func TestGetChildren_NotFoundParent(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetChildren(context.Background(), 42, false)
	requireServiceError(t, err, 404, "DIVISION_NOT_FOUND")
}

func TestGetChildren_OrdersBySortOrderThenName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	parent := mustCreate(t, svc, services.CreateDivisionInput{Code: "P", Name: "P"})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "Beta", ParentID: i64(parent.ID), SortOrder: 10})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "Alpha", ParentID: i64(parent.ID), SortOrder: 10})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "Z", Name: "Zeta", ParentID: i64(parent.ID), SortOrder: 5})

	children, err := svc.GetChildren(ctx, parent.ID, false)
	require.NoError(t, err)
	require.Len(t, children, 3)
	require.Equal(t, "Zeta", children[0].Name)
	require.Equal(t, "Alpha", children[1].Name)
	require.Equal(t, "Beta", children[2].Name)
}

func TestHierarchyTree_PreOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	root := mustCreate(t, svc, services.CreateDivisionInput{Code: "R", Name: "Root"})
	a := mustCreate(t, svc, services.CreateDivisionInput{Code: "A", Name: "A", ParentID: i64(root.ID), SortOrder: 10})
	b := mustCreate(t, svc, services.CreateDivisionInput{Code: "B", Name: "B", ParentID: i64(root.ID), SortOrder: 20})
	a1 := mustCreate(t, svc, services.CreateDivisionInput{Code: "A1", Name: "A1", ParentID: i64(a.ID)})

	tree, err := svc.GetHierarchyTree(ctx, &root.ID)
	require.NoError(t, err)

	ids := make([]int64, 0, len(tree))
	for _, d := range tree {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []int64{root.ID, a.ID, a1.ID, b.ID}, ids)
}

func TestHierarchyTree_MissingRootReturnsEmpty(t *testing.T) {
	svc, _ := newTestService()

	var rootID int64 = 42
	tree, err := svc.GetHierarchyTree(context.Background(), &rootID)
	require.NoError(t, err)
	require.Empty(t, tree)
}

func TestHierarchyTree_WithoutRootListsTopLevelOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	r1 := mustCreate(t, svc, services.CreateDivisionInput{Code: "R1", Name: "R1", SortOrder: 20})
	r2 := mustCreate(t, svc, services.CreateDivisionInput{Code: "R2", Name: "R2", SortOrder: 10})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "C", Name: "C", ParentID: i64(r1.ID)})

	tree, err := svc.GetHierarchyTree(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	require.Equal(t, r2.ID, tree[0].ID)
	require.Equal(t, r1.ID, tree[1].ID)
}

func TestSearch_FiltersAndPagination(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters", SortOrder: 10})
	ops := mustCreate(t, svc, services.CreateDivisionInput{Code: "OPS", Name: "Operations", ShortName: str("Ops Dept"), SortOrder: 20})
	_, err := svc.Create(ctx, services.CreateDivisionInput{Code: "OLD", Name: "Old Operations", SortOrder: 30})
	require.NoError(t, err)
	deleted := mustCreate(t, svc, services.CreateDivisionInput{Code: "GONE", Name: "Gone Operations", SortOrder: 40})
	require.NoError(t, svc.Delete(ctx, deleted.ID, true))

	// Substring match spans code, name and short_name.
	found, err := svc.Search(ctx, services.SearchFilters{Query: "operations"})
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = svc.Search(ctx, services.SearchFilters{Query: "ops dept"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, ops.ID, found[0].ID)

	found, err = svc.Search(ctx, services.SearchFilters{Query: "operations", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = svc.Search(ctx, services.SearchFilters{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, found, 4)

	found, err = svc.Search(ctx, services.SearchFilters{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, ops.ID, found[0].ID)
}

func TestAvailableCodes_SortedAndPrefixFiltered(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mustCreate(t, svc, services.CreateDivisionInput{Code: "OPS", Name: "Operations"})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters"})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "OPX", Name: "Ops Extra"})
	_, err := svc.Create(ctx, services.CreateDivisionInput{Code: "OPZ", Name: "Inactive"})
	require.NoError(t, err)
	deleted := mustCreate(t, svc, services.CreateDivisionInput{Code: "OPQ", Name: "Deleted"})
	require.NoError(t, svc.Delete(ctx, deleted.ID, true))

	codes, err := svc.AvailableCodes(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"HQ", "OPS", "OPX"}, codes)

	codes, err = svc.AvailableCodes(ctx, "op")
	require.NoError(t, err)
	require.Equal(t, []string{"OPS", "OPX"}, codes)
}

func TestGetByCode_CaseInsensitive(t *testing.T) {
	svc, _ := newTestService()

	div := mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters"})
	got, err := svc.GetByCode(context.Background(), "hq", false)
	require.NoError(t, err)
	require.Equal(t, div.ID, got.ID)
}

func TestSuggest_ActiveOnlyWithLimit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mustCreate(t, svc, services.CreateDivisionInput{Code: "OPS1", Name: "Operations One", SortOrder: 10})
	mustCreate(t, svc, services.CreateDivisionInput{Code: "OPS2", Name: "Operations Two", SortOrder: 20})
	_, err := svc.Create(ctx, services.CreateDivisionInput{Code: "OPS3", Name: "Operations Inactive", SortOrder: 30})
	require.NoError(t, err)

	found, err := svc.Suggest(ctx, "operations", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "OPS1", found[0].Code)
}

func TestLifecycle_RootAndChild(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	hq := mustCreate(t, svc, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters"})
	require.Equal(t, int64(1), hq.ID)
	require.Equal(t, 10, hq.SortOrder)

	alpha := mustCreate(t, svc, services.CreateDivisionInput{Code: "ALPHA", Name: "Alpha", ParentID: i64(hq.ID)})
	require.Equal(t, int64(2), alpha.ID)
	require.Equal(t, 10, alpha.SortOrder)

	_, err := svc.Move(ctx, hq.ID, i64(alpha.ID), nil)
	requireServiceError(t, err, 400, "DIVISION_CIRCULAR_REFERENCE")

	err = svc.Delete(ctx, hq.ID, true)
	svcErr := requireServiceError(t, err, 400, "DIVISION_HAS_CHILDREN")
	require.Equal(t, 1, svcErr.Meta["children"])

	require.NoError(t, svc.Delete(ctx, alpha.ID, true))
	require.NoError(t, svc.Delete(ctx, hq.ID, true))
}

func TestEvents_PublishedAfterMutations(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	bus := eventbus.NewEventPublisher(logger)
	svc := services.NewDivisionService(persistence.NewMemoryDivisionRepository(), bus)
	ctx := context.Background()

	var created []events.DivisionCreated
	var deleted []events.DivisionDeleted
	var restored []events.DivisionRestored
	bus.Subscribe(func(ev events.DivisionCreated) { created = append(created, ev) })
	bus.Subscribe(func(ev events.DivisionDeleted) { deleted = append(deleted, ev) })
	bus.Subscribe(func(ev events.DivisionRestored) { restored = append(restored, ev) })

	div, err := svc.Create(ctx, services.CreateDivisionInput{Code: "HQ", Name: "Headquarters", IsActive: true})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, div.ID, created[0].ID)

	require.NoError(t, svc.Delete(ctx, div.ID, true))
	require.Len(t, deleted, 1)
	require.True(t, deleted[0].Soft)

	_, err = svc.Restore(ctx, div.ID)
	require.NoError(t, err)
	require.Len(t, restored, 1)
}

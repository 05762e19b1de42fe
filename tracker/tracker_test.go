package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"recalc/address"
)

func cell(sheet, row, col int32) address.Range {
	return address.NewRange(address.New(sheet, row, col))
}

func span(sheet, r1, c1, r2, c2 int32) address.Range {
	return address.Range{First: address.New(sheet, r1, c1), Last: address.New(sheet, r2, c2)}
}

func TestAddAndQuery(t *testing.T) {
	tr := New()

	// B1 listens to A1
	src, dst := cell(0, 0, 1), cell(0, 0, 0)
	require.NoError(t, tr.Add(src, dst))

	dirty := tr.QueryDirtyCells([]address.Range{dst})
	require.Contains(t, dirty, src.First)
	require.Len(t, dirty, 1)
}

func TestQueryEmptyTracker(t *testing.T) {
	tr := New()
	require.Empty(t, tr.QueryDirtyCells(nil))
	require.Empty(t, tr.QueryDirtyCells([]address.Range{cell(3, 5, 5)}))
}

func TestAddRemoveRoundTrip(t *testing.T) {
	tr := New()
	src, dst := cell(0, 2, 0), span(0, 0, 0, 9, 0)

	require.NoError(t, tr.Add(src, dst))
	require.NoError(t, tr.Remove(src, dst))

	require.True(t, tr.Empty())
	require.Empty(t, tr.QueryDirtyCells([]address.Range{cell(0, 5, 0)}))

	// removing again is a silent no-op
	require.NoError(t, tr.Remove(src, dst))
}

func TestDuplicateAddIsNoOp(t *testing.T) {
	tr := New()
	src, dst := cell(0, 0, 1), cell(0, 0, 0)
	require.NoError(t, tr.Add(src, dst))
	require.NoError(t, tr.Add(src, dst))

	require.NoError(t, tr.Remove(src, dst))
	require.True(t, tr.Empty())
}

func TestInvalidDestinations(t *testing.T) {
	tr := New()
	src := cell(0, 0, 0)

	var lerr *ListenerError
	require.ErrorAs(t, tr.Add(src, cell(-1, 0, 0)), &lerr)

	multi := address.Range{First: address.New(0, 0, 0), Last: address.New(1, 2, 2)}
	require.ErrorAs(t, tr.Add(src, multi), &lerr)

	flipped := address.Range{First: address.New(0, 5, 5), Last: address.New(0, 0, 0)}
	require.ErrorAs(t, tr.Add(src, flipped), &lerr)
}

func TestTransitiveClosure(t *testing.T) {
	tr := New()

	// A3 <- A2 <- A1 chain
	require.NoError(t, tr.Add(cell(0, 1, 0), cell(0, 0, 0)))
	require.NoError(t, tr.Add(cell(0, 2, 0), cell(0, 1, 0)))

	dirty := tr.QueryDirtyCells([]address.Range{cell(0, 0, 0)})
	require.Contains(t, dirty, address.New(0, 1, 0))
	require.Contains(t, dirty, address.New(0, 2, 0))
	require.Len(t, dirty, 2)
}

func TestRangeOverlapQuery(t *testing.T) {
	tr := New()

	// C5 listens to A1:A3; modifying A2 hits the middle of the range
	src := cell(0, 4, 2)
	require.NoError(t, tr.Add(src, span(0, 0, 0, 2, 0)))

	dirty := tr.QueryDirtyCells([]address.Range{cell(0, 1, 0)})
	require.Contains(t, dirty, src.First)

	// a modification outside the destination stays clean
	require.Empty(t, tr.QueryDirtyCells([]address.Range{cell(0, 3, 0)}))
}

func TestGroupSourceRange(t *testing.T) {
	tr := New()

	// a 3x3 group at C5:E7 listens to A1:A3; a dependent listens to the
	// group's origin cell
	group := span(0, 4, 2, 6, 4)
	require.NoError(t, tr.Add(group, span(0, 0, 0, 2, 0)))
	dep := cell(0, 9, 0)
	require.NoError(t, tr.Add(dep, cell(0, 4, 2)))

	dirty := tr.QueryDirtyCells([]address.Range{cell(0, 0, 0)})
	require.Contains(t, dirty, group.First, "group origin is dirty")
	require.Contains(t, dirty, dep.First, "dependent found via the full group range")
}

func TestVolatileCells(t *testing.T) {
	tr := New()
	v := address.New(0, 0, 1)
	tr.AddVolatile(v)

	dirty := tr.QueryDirtyCells(nil)
	require.Contains(t, dirty, v)
	require.Len(t, dirty, 1)

	tr.RemoveVolatile(v)
	require.Empty(t, tr.QueryDirtyCells(nil))
	require.True(t, tr.Empty())
}

func TestCrossSheetIsolation(t *testing.T) {
	tr := New()

	// Sheet2!B2 listens to Sheet1!A10
	src := cell(1, 1, 1)
	require.NoError(t, tr.Add(src, cell(0, 9, 0)))

	require.Contains(t, tr.QueryDirtyCells([]address.Range{cell(0, 9, 0)}), src.First)
	require.Empty(t, tr.QueryDirtyCells([]address.Range{cell(1, 9, 0)}),
		"same coordinates on another sheet do not overlap")
}

func TestInclusiveOverlapEdges(t *testing.T) {
	tr := New()
	src := cell(0, 0, 5)
	require.NoError(t, tr.Add(src, span(0, 2, 2, 4, 4)))

	for _, mod := range []address.Range{
		cell(0, 2, 2), cell(0, 2, 4), cell(0, 4, 2), cell(0, 4, 4),
	} {
		require.Contains(t, tr.QueryDirtyCells([]address.Range{mod}), src.First,
			"corner %v is inclusive", mod)
	}
	require.Empty(t, tr.QueryDirtyCells([]address.Range{cell(0, 5, 5)}))
}

package table

import (
	"path/filepath"
	"testing"

	"github.com/Felmond13/lstoredb/storage"
)

func newTestTable(t *testing.T, numColumns, pkIndex int) (*Table, func()) {
	t.Helper()
	root := t.TempDir()
	disk, err := storage.NewDiskManager(filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	bp := storage.NewBufferPool(disk, 256)
	tbl, err := Create("grades", numColumns, pkIndex, disk, bp)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tbl, func() { disk.Close() }
}

func allTrue(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = 1
	}
	return p
}

func TestInsertAndSelect(t *testing.T) {
	tbl, closeFn := newTestTable(t, 3, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1, 10, 20}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tbl.Insert([]int64{2, 11, 21}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	res, err := tbl.Select(2, 0, allTrue(3))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res) != 1 || res[0].Columns[1] != 11 || res[0].Columns[2] != 21 {
		t.Fatalf("unexpected select result: %+v", res)
	}
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tbl, closeFn := newTestTable(t, 2, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1, 100}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tbl.Insert([]int64{1, 200}); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestUpdateHistoryAndVersions(t *testing.T) {
	tbl, closeFn := newTestTable(t, 2, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1, 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for _, v := range []int64{20, 30, 40} {
		upd := []ColumnUpdate{Keep, {Set: true, Value: v}}
		if err := tbl.Update(1, upd); err != nil {
			t.Fatalf("update to %d: %v", v, err)
		}
	}

	cases := []struct {
		version int
		want    int64
	}{
		{0, 40},
		{-1, 30},
		{-2, 20},
		{-3, 10},
		{-4, 10}, // saturates at base
	}
	for _, c := range cases {
		res, err := tbl.SelectVersion(1, 0, allTrue(2), c.version)
		if err != nil {
			t.Fatalf("select_version(%d): %v", c.version, err)
		}
		if len(res) != 1 || res[0].Columns[1] != c.want {
			t.Fatalf("version %d: want %d, got %+v", c.version, c.want, res)
		}
	}
}

func TestMergeRangePreservesVersionHistory(t *testing.T) {
	tbl, closeFn := newTestTable(t, 2, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1, 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for _, v := range []int64{20, 30} {
		upd := []ColumnUpdate{Keep, {Set: true, Value: v}}
		if err := tbl.Update(1, upd); err != nil {
			t.Fatalf("update to %d: %v", v, err)
		}
	}

	preMerge := map[int]int64{0: 30, -1: 20, -2: 10, -3: 10}
	preSum, err := tbl.Sum(1, 1, 1)
	if err != nil {
		t.Fatalf("sum before merge: %v", err)
	}

	if err := tbl.MergeRange(0); err != nil {
		t.Fatalf("merge: %v", err)
	}

	for version, want := range preMerge {
		res, err := tbl.SelectVersion(1, 0, allTrue(2), version)
		if err != nil {
			t.Fatalf("select_version(%d) after merge: %v", version, err)
		}
		if len(res) != 1 || res[0].Columns[1] != want {
			t.Fatalf("version %d after merge: want %d, got %+v", version, want, res)
		}
	}

	res, err := tbl.Select(1, 0, allTrue(2))
	if err != nil {
		t.Fatalf("select after merge: %v", err)
	}
	if len(res) != 1 || res[0].Columns[1] != 30 {
		t.Fatalf("select after merge: want 30, got %+v", res)
	}

	postSum, err := tbl.Sum(1, 1, 1)
	if err != nil {
		t.Fatalf("sum after merge: %v", err)
	}
	if postSum != preSum {
		t.Fatalf("sum after merge: want %d, got %d", preSum, postSum)
	}
}

func TestUpdatePrimaryKeyRename(t *testing.T) {
	tbl, closeFn := newTestTable(t, 2, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1, 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	upd := []ColumnUpdate{{Set: true, Value: 2}, Keep}
	if err := tbl.Update(1, upd); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := tbl.Select(1, 0, allTrue(2)); err != nil {
		t.Fatalf("select old key: %v", err)
	}
	res, err := tbl.Select(2, 0, allTrue(2))
	if err != nil {
		t.Fatalf("select new key: %v", err)
	}
	if len(res) != 1 || res[0].Columns[1] != 10 {
		t.Fatalf("unexpected result after rename: %+v", res)
	}
}

func TestRangeSum(t *testing.T) {
	tbl, closeFn := newTestTable(t, 2, 0)
	defer closeFn()

	for pk := int64(1); pk <= 5; pk++ {
		if _, err := tbl.Insert([]int64{pk, pk * 10}); err != nil {
			t.Fatalf("insert %d: %v", pk, err)
		}
	}

	total, err := tbl.Sum(2, 4, 1)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 20+30+40 {
		t.Fatalf("want 90, got %d", total)
	}
}

func TestSecondaryIndexSelect(t *testing.T) {
	tbl, closeFn := newTestTable(t, 3, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1, 99, 7}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tbl.Insert([]int64{2, 99, 8}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.CreateIndex(1); err != nil {
		t.Fatalf("create_index: %v", err)
	}

	res, err := tbl.Select(99, 1, allTrue(3))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("want 2 matches, got %d", len(res))
	}

	if err := tbl.DropIndex(1); err != nil {
		t.Fatalf("drop_index: %v", err)
	}
	res, err = tbl.Select(99, 1, allTrue(3))
	if err != nil {
		t.Fatalf("select after drop: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("fallback scan: want 2 matches, got %d", len(res))
	}
}

func TestDelete(t *testing.T) {
	tbl, closeFn := newTestTable(t, 2, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1, 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	res, err := tbl.Select(1, 0, allTrue(2))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("expected no results after delete, got %+v", res)
	}
	if err := tbl.Delete(1); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound on second delete, got %v", err)
	}
}

func TestDurabilityRoundTrip(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")

	disk, err := storage.NewDiskManager(dataDir)
	if err != nil {
		t.Fatalf("NewDiskManager: %v", err)
	}
	bp := storage.NewBufferPool(disk, 256)
	tbl, err := Create("grades", 2, 0, disk, bp)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := tbl.Insert([]int64{1, 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Update(1, []ColumnUpdate{Keep, {Set: true, Value: 20}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := disk.Close(); err != nil {
		t.Fatalf("disk close: %v", err)
	}

	disk2, err := storage.NewDiskManager(dataDir)
	if err != nil {
		t.Fatalf("reopen NewDiskManager: %v", err)
	}
	defer disk2.Close()
	bp2 := storage.NewBufferPool(disk2, 256)
	reopened, err := Open("grades", disk2, bp2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	res, err := reopened.Select(1, 0, allTrue(2))
	if err != nil {
		t.Fatalf("select after reopen: %v", err)
	}
	if len(res) != 1 || res[0].Columns[1] != 20 {
		t.Fatalf("unexpected result after reopen: %+v", res)
	}
}

func TestBadArguments(t *testing.T) {
	tbl, closeFn := newTestTable(t, 2, 0)
	defer closeFn()

	if _, err := tbl.Insert([]int64{1}); err == nil {
		t.Fatal("expected error for wrong column count")
	}
	if _, err := tbl.Sum(5, 1, 0); err == nil {
		t.Fatal("expected error for inverted sum range")
	}
}

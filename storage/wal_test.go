package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempWALPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

func testKey(col int) PageKey {
	return PageKey{Table: "t", Range: 0, Set: Base, Col: col, Index: 0}
}

func TestWALOpenAndClose(t *testing.T) {
	dbPath := tempWALPath(t)
	walPath := dbPath + ".wal"

	wal, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(wal.CommittedPageWrites()) != 0 {
		t.Errorf("expected 0 committed writes, got %d", len(wal.CommittedPageWrites()))
	}
	if err := wal.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(walPath); os.IsNotExist(err) {
		t.Error("wal file should exist")
	}
}

func TestWALAppendAndReload(t *testing.T) {
	dbPath := tempWALPath(t)

	wal, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	page := NewPage()
	page.Write(42)

	if _, err := wal.LogPageWrite(testKey(0), page.Data[:]); err != nil {
		t.Fatalf("log page write: %v", err)
	}
	if _, err := wal.LogPageWrite(testKey(1), page.Data[:]); err != nil {
		t.Fatalf("log page write 2: %v", err)
	}
	if err := wal.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	wal.Close()

	wal2, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer wal2.Close()

	committed := wal2.CommittedPageWrites()
	if len(committed) != 2 {
		t.Fatalf("expected 2 committed writes, got %d", len(committed))
	}
	decoded, err := DecodePage(committed[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Read(0) != 42 {
		t.Errorf("expected 42, got %d", decoded.Read(0))
	}
}

func TestWALUncommittedIgnored(t *testing.T) {
	dbPath := tempWALPath(t)

	wal, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	page := NewPage()
	wal.LogPageWrite(testKey(0), page.Data[:])

	if got := len(wal.CommittedPageWrites()); got != 0 {
		t.Errorf("expected 0 committed writes, got %d", got)
	}
	wal.Close()

	wal2, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer wal2.Close()

	if got := len(wal2.CommittedPageWrites()); got != 0 {
		t.Errorf("expected 0 committed writes after reload, got %d", got)
	}
}

func TestWALTruncate(t *testing.T) {
	dbPath := tempWALPath(t)

	wal, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer wal.Close()

	page := NewPage()
	wal.LogPageWrite(testKey(0), page.Data[:])
	wal.Commit()

	if err := wal.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if got := len(wal.CommittedPageWrites()); got != 0 {
		t.Errorf("expected 0 committed writes after truncate, got %d", got)
	}

	wal.LogPageWrite(testKey(2), page.Data[:])
	wal.Commit()
	if got := len(wal.CommittedPageWrites()); got != 1 {
		t.Errorf("expected 1 committed write, got %d", got)
	}
}

func TestWALMultipleCommits(t *testing.T) {
	dbPath := tempWALPath(t)

	wal, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer wal.Close()

	page := NewPage()
	wal.LogPageWrite(testKey(0), page.Data[:])
	wal.Commit()

	page.Overwrite(0, 7)
	wal.LogPageWrite(testKey(0), page.Data[:])
	wal.LogPageWrite(testKey(1), page.Data[:])
	wal.Commit()

	wal.LogPageWrite(testKey(2), page.Data[:]) // pas commité

	committed := wal.CommittedPageWrites()
	if len(committed) != 3 {
		t.Errorf("expected 3 committed writes, got %d", len(committed))
	}
	for _, c := range committed {
		if c.Key.Col == 2 {
			t.Error("column 2 write should not be committed")
		}
	}
}

func TestWALCRCIntegrity(t *testing.T) {
	dbPath := tempWALPath(t)

	wal, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	page := NewPage()
	page.Write(99)
	wal.LogPageWrite(testKey(0), page.Data[:])
	wal.Commit()
	wal.Close()

	walPath := dbPath + ".wal"
	f, err := os.OpenFile(walPath, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open wal file: %v", err)
	}
	// Corrompt un octet quelque part après l'en-tête du fichier WAL : le
	// CRC32 de fin de record ne correspondra plus et le chargement doit
	// s'arrêter avant ce record.
	if _, err := f.WriteAt([]byte{0xFF}, int64(walHeaderSize)+20); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	f.Close()

	wal2, err := OpenWAL(dbPath)
	if err != nil {
		t.Fatalf("reopen after corruption: %v", err)
	}
	defer wal2.Close()

	if got := len(wal2.CommittedPageWrites()); got != 0 {
		t.Errorf("expected 0 committed writes after corruption, got %d", got)
	}
}

func TestDiskManagerWriteReadPage(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDiskManager(dir)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	defer d.Close()

	key := testKey(0)
	page := NewPage()
	page.Write(123)
	if err := d.WritePage(key, page); err != nil {
		t.Fatalf("write page: %v", err)
	}
	if err := d.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := d.ReadPage(key)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if got.Read(0) != 123 {
		t.Errorf("expected 123, got %d", got.Read(0))
	}
}

func TestDiskManagerRecoversAfterCrash(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDiskManager(dir)
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}

	key := testKey(0)
	page := NewPage()
	page.Write(55)
	// Simule un crash : on journalise et on commit le WAL sans jamais écrire
	// le fichier de page (pas de WritePage ; on ferme directement, comme si
	// le processus avait été tué après le fsync du WAL).
	if _, err := d.wal.LogPageWrite(key, page.Data[:]); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := d.wal.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	d.wal.Close()

	d2, err := NewDiskManager(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d2.Close()

	got, err := d2.ReadPage(key)
	if err != nil {
		t.Fatalf("read page after recovery: %v", err)
	}
	if got.Read(0) != 55 {
		t.Errorf("expected 55 after recovery, got %d", got.Read(0))
	}
}

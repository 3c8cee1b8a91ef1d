// Package lstoredb fournit le point d'entrée principal du moteur : ouvrir
// ou créer une base sur un répertoire donné, y créer/récupérer des tables,
// et fermer proprement (workers, pool de buffers, directories).
package lstoredb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Felmond13/lstoredb/concurrency"
	"github.com/Felmond13/lstoredb/config"
	"github.com/Felmond13/lstoredb/internal/dblog"
	"github.com/Felmond13/lstoredb/merge"
	"github.com/Felmond13/lstoredb/storage"
	"github.com/Felmond13/lstoredb/table"
)

// Database est un objet scopé : chaque ouverture possède son propre pool de
// buffers, son propre worker de fusion et son propre gestionnaire de
// verrous — pas d'état process-wide partagé entre bases, pas de singleton
// global.
type Database struct {
	mu sync.Mutex

	root string
	cfg  config.Config
	log  *dblog.Logger

	lock *storage.FileLock
	disk *storage.DiskManager
	bp   *storage.BufferPool

	lockMgr *concurrency.LockManager

	tables map[string]*table.Table

	mergeWorker *merge.Worker
	janitor     *cron.Cron
}

// Open ouvre (en créant si besoin) la base enracinée sous path : acquiert le
// verrou de processus, construit le pool de buffers, charge les en-têtes de
// toute table déjà persistée, puis démarre le worker de fusion et le
// janitor périodique.
func Open(path string) (*Database, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("lstoredb: cannot create %q: %w", path, err)
	}

	fileLock, err := storage.LockDatabase(path)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(filepath.Join(path, "config.yaml"))
	if err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("lstoredb: load config: %w", err)
	}

	disk, err := storage.NewDiskManager(path)
	if err != nil {
		fileLock.Unlock()
		return nil, err
	}

	db := &Database{
		root:        path,
		cfg:         cfg,
		log:         dblog.New("database"),
		lock:        fileLock,
		disk:        disk,
		bp:          storage.NewBufferPool(disk, cfg.BufferFrames),
		lockMgr:     concurrency.NewLockManager(concurrency.LockPolicyFail),
		tables:      make(map[string]*table.Table),
		mergeWorker: merge.NewWorker(time.Second),
	}

	if err := db.loadExistingTables(); err != nil {
		disk.Close()
		fileLock.Unlock()
		return nil, err
	}

	db.mergeWorker.Start()
	db.startJanitor()

	return db, nil
}

func (db *Database) tablesDir() string {
	return filepath.Join(db.root, "tables")
}

// loadExistingTables découvre les tables déjà persistées en énumérant
// tables/ (une table par sous-répertoire) et les rouvre.
func (db *Database) loadExistingTables() error {
	entries, err := os.ReadDir(db.tablesDir())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lstoredb: list tables: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		tbl, err := table.Open(name, db.disk, db.bp)
		if err != nil {
			return fmt.Errorf("lstoredb: reopen table %q: %w", name, err)
		}
		tbl.MergeThreshold = db.cfg.MergeThreshold
		db.tables[name] = tbl
		db.mergeWorker.Register(name, tbl)
	}
	return nil
}

// startJanitor programme le flush périodique du pool de buffers et le
// checkpoint du WAL, à la cadence de cfg.Checkpoint : Close flushe aussi à
// l'arrêt, le janitor fixe la limite de durabilité entre deux fermetures.
func (db *Database) startJanitor() {
	if db.cfg.Checkpoint.Disabled {
		return
	}
	db.janitor = cron.New()
	spec := fmt.Sprintf("@every %s", db.cfg.Checkpoint.Interval.String())
	_, err := db.janitor.AddFunc(spec, func() {
		db.mu.Lock()
		defer db.mu.Unlock()
		if err := db.bp.FlushAll(); err != nil {
			db.log.Errorf("janitor flush failed: %v", err)
			return
		}
		if err := db.disk.Checkpoint(); err != nil {
			db.log.Errorf("janitor checkpoint failed: %v", err)
		}
	})
	if err != nil {
		db.log.Errorf("cannot schedule janitor: %v", err)
		return
	}
	db.janitor.Start()
}

// CreateTable allocates a fresh table's on-disk layout under path/tables/name.
func (db *Database) CreateTable(name string, numColumns, pkIndex int) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("lstoredb: table %q already exists", name)
	}

	tbl, err := table.Create(name, numColumns, pkIndex, db.disk, db.bp)
	if err != nil {
		return nil, err
	}
	tbl.MergeThreshold = db.cfg.MergeThreshold
	if err := tbl.Close(); err != nil {
		return nil, fmt.Errorf("lstoredb: persist new table %q: %w", name, err)
	}

	db.tables[name] = tbl
	db.mergeWorker.Register(name, tbl)
	return tbl, nil
}

// GetTable retrieves an already-open table by name.
func (db *Database) GetTable(name string) (*table.Table, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tbl, ok := db.tables[name]
	return tbl, ok
}

// LockManager returns the database-wide record-level lock manager shared by
// every transaction opened against this database.
func (db *Database) LockManager() *concurrency.LockManager {
	return db.lockMgr
}

// Close stops the merge worker and the janitor, flushes every dirty frame,
// persists each table's directory/index/meta, and releases the OS-level
// process lock.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.mergeWorker.Stop()
	if db.janitor != nil {
		ctx := db.janitor.Stop()
		<-ctx.Done()
	}

	for name, tbl := range db.tables {
		if err := tbl.Close(); err != nil {
			db.log.Errorf("close table %q: %v", name, err)
		}
	}

	if err := db.bp.FlushAll(); err != nil {
		db.log.Errorf("final flush failed: %v", err)
	}
	if err := db.disk.Close(); err != nil {
		db.log.Errorf("disk close failed: %v", err)
	}

	return db.lock.Unlock()
}

// Package txn implémente la transaction et le worker de transaction : une
// liste ordonnée d'opérations différées, rejouée en cas d'échec via un
// journal d'annulation, et le fil d'exécution qui les exécute en séquence.
package txn

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Felmond13/lstoredb/concurrency"
	"github.com/Felmond13/lstoredb/table"
)

// ErrConflict signale un conflit de verrou au niveau record : la
// transaction qui le rencontre avorte immédiatement, sans attente de
// deadlock.
var ErrConflict = errors.New("txn: lock conflict")

// Kind distingue les sept opérations de table exposées à une transaction.
type Kind int

const (
	KindInsert Kind = iota
	KindSelect
	KindSelectVersion
	KindUpdate
	KindDelete
	KindSum
	KindSumVersion
)

// Op est une opération différée enqueuée par add(). Seuls les champs
// pertinents pour Kind sont lus.
type Op struct {
	Kind  Kind
	Table *table.Table

	// insert
	InsertValues []int64

	// update / delete (clé primaire cible)
	PK int64

	// select / select_version ; Version sert aussi à sum_version
	SearchValue int64
	SearchCol   int
	Projection  []int
	Version     int

	// update
	UpdateMask []table.ColumnUpdate

	// sum / sum_version
	SumLow, SumHigh int64
	SumCol          int
}

// undoEntry capture assez d'état pour annuler une mutation réussie dans
// l'ordre inverse (insert→delete, update→update-vers-état-antérieur,
// delete→ré-insertion).
type undoEntry struct {
	kind         Kind
	tbl          *table.Table
	pk           int64
	priorValues  []int64
	priorExisted bool
}

// Result porte la sortie d'une opération de lecture (select/sum) dans
// l'ordre où elle a été ajoutée à la transaction.
type Result struct {
	Rows []table.Result
	Sum  int64
}

// Transaction est une liste ordonnée d'opérations différées. add() enqueue,
// Run() les exécute séquentiellement contre leurs tables cibles.
type Transaction struct {
	ID uuid.UUID

	lockMgr *concurrency.LockManager

	ops     []Op
	undo    []undoEntry
	results []Result

	held []heldLock
}

type heldLock struct {
	table string
	rid   int64
	mode  concurrency.LockMode
}

// New crée une transaction vide, identifiée par un UUID de corrélation pour
// la journalisation, qui acquiert ses verrous record-level via lockMgr.
func New(lockMgr *concurrency.LockManager) *Transaction {
	return &Transaction{ID: uuid.New(), lockMgr: lockMgr}
}

// Add enqueue une opération différée.
func (t *Transaction) Add(op Op) {
	t.ops = append(t.ops, op)
}

// Results retourne les résultats des opérations de lecture, dans l'ordre où
// elles ont été ajoutées.
func (t *Transaction) Results() []Result {
	return t.results
}

// Run exécute les opérations en séquence. Sur le premier échec non-Internal,
// la transaction avorte : le journal d'annulation est rejoué en ordre
// inverse et Run retourne (false, nil). Une faute Internal est remontée
// telle quelle, sans tentative de rollback supplémentaire. Sinon Run
// retourne (true, nil) : la transaction a validé.
func (t *Transaction) Run() (bool, error) {
	defer t.releaseAll()

	for _, op := range t.ops {
		if err := t.execute(op); err != nil {
			if isInternal(err) {
				return false, err
			}
			t.rollback()
			return false, nil
		}
	}
	return true, nil
}

func (t *Transaction) execute(op Op) error {
	switch op.Kind {
	case KindInsert:
		return t.execInsert(op)
	case KindSelect:
		return t.execSelect(op, 0)
	case KindSelectVersion:
		return t.execSelect(op, op.Version)
	case KindUpdate:
		return t.execUpdate(op)
	case KindDelete:
		return t.execDelete(op)
	case KindSum:
		return t.execSum(op, 0)
	case KindSumVersion:
		return t.execSum(op, op.Version)
	default:
		return fmt.Errorf("txn: unknown operation kind %d", op.Kind)
	}
}

func (t *Transaction) execInsert(op Op) error {
	rid, err := op.Table.Insert(op.InsertValues)
	if err != nil {
		return err
	}
	pk := op.InsertValues[op.Table.PKIndex]
	if err := t.acquire(op.Table.Name, rid); err != nil {
		// L'insertion a réussi avant que le verrou ne puisse être posé ;
		// on l'annule immédiatement pour ne pas laisser d'état orphelin.
		_ = op.Table.Delete(pk)
		return err
	}
	t.undo = append(t.undo, undoEntry{kind: KindInsert, tbl: op.Table, pk: pk})
	return nil
}

func (t *Transaction) execSelect(op Op, version int) error {
	var rows []table.Result
	var err error
	if version == 0 && op.Kind == KindSelect {
		rows, err = op.Table.Select(op.SearchValue, op.SearchCol, op.Projection)
	} else {
		rows, err = op.Table.SelectVersion(op.SearchValue, op.SearchCol, op.Projection, version)
	}
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := t.acquireShared(op.Table.Name, row.RID); err != nil {
			return err
		}
	}
	t.results = append(t.results, Result{Rows: rows})
	return nil
}

func (t *Transaction) execUpdate(op Op) error {
	rid, ok := lookupRID(op.Table, op.PK)
	if !ok {
		return table.ErrKeyNotFound
	}
	if err := t.acquire(op.Table.Name, rid); err != nil {
		return err
	}

	priorValues, deleted, err := readSnapshot(op.Table, op.PK)
	if err != nil {
		return err
	}
	if deleted {
		return table.ErrKeyNotFound
	}

	if err := op.Table.Update(op.PK, op.UpdateMask); err != nil {
		return err
	}

	newPK := op.PK
	for i, u := range op.UpdateMask {
		if u.Set && i == op.Table.PKIndex {
			newPK = u.Value
		}
	}
	t.undo = append(t.undo, undoEntry{kind: KindUpdate, tbl: op.Table, pk: newPK, priorValues: priorValues, priorExisted: true})
	return nil
}

func (t *Transaction) execDelete(op Op) error {
	rid, ok := lookupRID(op.Table, op.PK)
	if !ok {
		return table.ErrKeyNotFound
	}
	if err := t.acquire(op.Table.Name, rid); err != nil {
		return err
	}

	priorValues, deleted, err := readSnapshot(op.Table, op.PK)
	if err != nil {
		return err
	}
	if deleted {
		return table.ErrKeyNotFound
	}

	if err := op.Table.Delete(op.PK); err != nil {
		return err
	}
	t.undo = append(t.undo, undoEntry{kind: KindDelete, tbl: op.Table, pk: op.PK, priorValues: priorValues, priorExisted: true})
	return nil
}

func (t *Transaction) execSum(op Op, version int) error {
	var sum int64
	var err error
	if version == 0 && op.Kind == KindSum {
		sum, err = op.Table.Sum(op.SumLow, op.SumHigh, op.SumCol)
	} else {
		sum, err = op.Table.SumVersion(op.SumLow, op.SumHigh, op.SumCol, version)
	}
	if err != nil {
		return err
	}
	t.results = append(t.results, Result{Sum: sum})
	return nil
}

// rollback rejoue le journal d'annulation en ordre inverse.
func (t *Transaction) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		e := t.undo[i]
		switch e.kind {
		case KindInsert:
			_ = e.tbl.Delete(e.pk)
		case KindUpdate:
			mask := make([]table.ColumnUpdate, e.tbl.NumColumns)
			for i := range mask {
				mask[i] = table.ColumnUpdate{Set: true, Value: e.priorValues[i]}
			}
			_ = e.tbl.Update(e.pk, mask)
		case KindDelete:
			_, _ = e.tbl.Insert(e.priorValues)
		}
	}
}

// acquire takes an exclusive (write) lock on rid, held until the transaction
// ends; used by insert/update/delete since each mutates the record it locks.
// A write lock this transaction already holds is reused; a read lock it holds
// is not upgraded, so the write acquisition then fails as a conflict.
func (t *Transaction) acquire(tableName string, rid int64) error {
	if t.holdsLock(tableName, rid, concurrency.LockWrite) {
		return nil
	}
	if err := t.lockMgr.AcquireRecord(tableName, rid); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	t.held = append(t.held, heldLock{table: tableName, rid: rid, mode: concurrency.LockWrite})
	return nil
}

// acquireShared takes a read lock on rid, held until the transaction ends;
// used by select/select_version so concurrent readers of the same record
// never conflict with each other, only with a writer.
func (t *Transaction) acquireShared(tableName string, rid int64) error {
	if t.holdsLock(tableName, rid, concurrency.LockRead) {
		return nil
	}
	if err := t.lockMgr.AcquireRecordShared(tableName, rid); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	t.held = append(t.held, heldLock{table: tableName, rid: rid, mode: concurrency.LockRead})
	return nil
}

// holdsLock reports whether this transaction already holds a lock on rid at
// least as strong as mode (a write lock also covers reads).
func (t *Transaction) holdsLock(tableName string, rid int64, mode concurrency.LockMode) bool {
	for _, h := range t.held {
		if h.table == tableName && h.rid == rid && h.mode >= mode {
			return true
		}
	}
	return false
}

func (t *Transaction) releaseAll() {
	for _, h := range t.held {
		if h.mode == concurrency.LockWrite {
			t.lockMgr.ReleaseRecord(h.table, h.rid)
		} else {
			t.lockMgr.ReleaseRecordShared(h.table, h.rid)
		}
	}
	t.held = nil
}

func lookupRID(tbl *table.Table, pk int64) (int64, bool) {
	rows, err := tbl.Select(pk, tbl.PKIndex, fullProjection(tbl.NumColumns))
	if err != nil || len(rows) == 0 {
		return 0, false
	}
	return rows[0].RID, true
}

func readSnapshot(tbl *table.Table, pk int64) ([]int64, bool, error) {
	rows, err := tbl.Select(pk, tbl.PKIndex, fullProjection(tbl.NumColumns))
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, true, nil
	}
	return rows[0].Columns, false, nil
}

func fullProjection(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = 1
	}
	return p
}

// isInternal rapporte si err appartient à la classe Internal plutôt qu'à
// une des trois classes recoverable (DuplicateKey, KeyNotFound,
// BadArgument) ou au conflit de verrou, qui déclenchent toutes un abort.
func isInternal(err error) bool {
	switch {
	case errors.Is(err, table.ErrDuplicateKey),
		errors.Is(err, table.ErrKeyNotFound),
		errors.Is(err, table.ErrBadArgument),
		errors.Is(err, ErrConflict):
		return false
	default:
		return true
	}
}

package table

import (
	"fmt"
	"sync"

	"github.com/Felmond13/lstoredb/directory"
	"github.com/Felmond13/lstoredb/index"
	"github.com/Felmond13/lstoredb/internal/dblog"
	"github.com/Felmond13/lstoredb/storage"
)

// ColumnUpdate est une valeur taguée {Set(i64), Keep} de la longueur de la
// table : Set=true signifie "écrire Value", Set=false signifie "conserver
// la valeur courante" — jamais modélisé via un nil de langage.
type ColumnUpdate struct {
	Set   bool
	Value int64
}

// Keep est le marqueur "ne pas modifier" pour update().
var Keep = ColumnUpdate{}

// Table compose le directory de pages, les index et le pool de buffers pour
// exposer les opérations de lecture et d'écriture d'une table colonnaire.
type Table struct {
	Name           string
	NumColumns     int
	PKIndex        int
	MergeThreshold int

	disk      *storage.DiskManager
	bp        *storage.BufferPool
	dir       *directory.Directory
	primary   *index.Primary
	secondary *index.Manager
	log       *dblog.Logger

	mu sync.RWMutex // sérialise les compteurs de RID/timestamp et l'index primaire

	nextBaseRID   int64
	nextTailLocal int64
	tsCounter     int64

	rangesMu       sync.RWMutex
	ranges         map[int]*pageRange
	currentRangeID int
}

// Create initialise une table neuve, vide, prête à recevoir des écritures.
// Elle n'est persistée sur disque qu'à Close (ou au prochain flush explicite).
func Create(name string, numColumns, pkIndex int, disk *storage.DiskManager, bp *storage.BufferPool) (*Table, error) {
	if numColumns <= 0 {
		return nil, badArgument("create table %q: numColumns must be positive", name)
	}
	if pkIndex < 0 || pkIndex >= numColumns {
		return nil, badArgument("create table %q: pkIndex %d out of bounds", name, pkIndex)
	}
	t := &Table{
		Name:           name,
		NumColumns:     numColumns,
		PKIndex:        pkIndex,
		MergeThreshold: DefaultMergeThreshold,
		disk:           disk,
		bp:             bp,
		dir:            directory.New(),
		primary:        index.NewPrimary(),
		secondary:      index.NewManager(),
		log:            dblog.New(fmt.Sprintf("table:%s", name)),
		ranges:         make(map[int]*pageRange),
	}
	t.ranges[0] = newPageRange(0)
	return t, nil
}

// Open recharge une table persistée par un Close précédent.
func Open(name string, disk *storage.DiskManager, bp *storage.BufferPool) (*Table, error) {
	rawMeta, err := disk.ReadFile(metaPath(name))
	if err != nil {
		return nil, internalError("open table", err)
	}
	m, err := decodeMeta(rawMeta)
	if err != nil {
		return nil, internalError("open table", err)
	}

	t := &Table{
		Name:           name,
		NumColumns:     int(m.numColumns),
		PKIndex:        int(m.pkIndex),
		MergeThreshold: DefaultMergeThreshold,
		disk:           disk,
		bp:             bp,
		log:            dblog.New(fmt.Sprintf("table:%s", name)),
		nextBaseRID:    m.nextBaseRID,
		nextTailLocal:  m.nextTailLocal,
		tsCounter:      m.tsCounter,
		currentRangeID: int(m.currentRangeID),
		ranges:         make(map[int]*pageRange, len(m.ranges)),
	}

	for i, rs := range m.ranges {
		pr := newPageRange(i)
		pr.base = cursor{pageIndex: int(rs.basePage), slot: int(rs.baseSlot)}
		pr.tail = cursor{pageIndex: int(rs.tailPage), slot: int(rs.tailSlot)}
		pr.tailPagesSinceMerge = int(rs.tailPagesSinceMerge)
		t.ranges[i] = pr
	}

	if rawDir, err := disk.ReadFile(directoryPath(name)); err == nil {
		d, err := directory.Decode(rawDir)
		if err != nil {
			return nil, internalError("open table", err)
		}
		t.dir = d
	} else {
		t.dir = directory.New()
	}

	if rawIdx, err := disk.ReadFile(primaryIndexPath(name)); err == nil {
		p, err := index.DecodePrimary(rawIdx)
		if err != nil {
			return nil, internalError("open table", err)
		}
		t.primary = p
	} else {
		t.primary = index.NewPrimary()
	}
	t.secondary = index.NewManager()

	return t, nil
}

// Close persiste l'en-tête, le directory et l'index primaire de la table.
// Les index secondaires sont reconstruits à la demande (create_index) et ne
// sont pas persistés : ils sont reconstruits depuis les valeurs courantes.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rangesMu.Lock()
	defer t.rangesMu.Unlock()

	m := &meta{
		numColumns:     uint32(t.NumColumns),
		pkIndex:        uint32(t.PKIndex),
		nextBaseRID:    t.nextBaseRID,
		nextTailLocal:  t.nextTailLocal,
		tsCounter:      t.tsCounter,
		currentRangeID: uint32(t.currentRangeID),
	}
	maxID := t.currentRangeID
	for id := range t.ranges {
		if id > maxID {
			maxID = id
		}
	}
	m.ranges = make([]rangeState, maxID+1)
	for id, pr := range t.ranges {
		pr.mu.RLock()
		m.ranges[id] = rangeState{
			basePage:            uint32(pr.base.pageIndex),
			baseSlot:            uint32(pr.base.slot),
			tailPage:            uint32(pr.tail.pageIndex),
			tailSlot:            uint32(pr.tail.slot),
			tailPagesSinceMerge: uint32(pr.tailPagesSinceMerge),
		}
		pr.mu.RUnlock()
	}

	if err := t.disk.WriteFile(metaPath(t.Name), m.encode()); err != nil {
		return internalError("close table", err)
	}
	if err := t.disk.WriteFile(directoryPath(t.Name), t.dir.Encode()); err != nil {
		return internalError("close table", err)
	}
	if err := t.disk.WriteFile(primaryIndexPath(t.Name), t.primary.Encode()); err != nil {
		return internalError("close table", err)
	}
	return nil
}

func metaPath(name string) string         { return fmt.Sprintf("tables/%s/meta", name) }
func directoryPath(name string) string    { return fmt.Sprintf("tables/%s/page_directory.bin", name) }
func primaryIndexPath(name string) string { return fmt.Sprintf("tables/%s/indexes/primary.bin", name) }

func (t *Table) totalColumns() int   { return t.NumColumns + metaColumns }
func (t *Table) colIndirection() int { return t.NumColumns + metaIndirection }
func (t *Table) colRID() int         { return t.NumColumns + metaRID }
func (t *Table) colSchema() int      { return t.NumColumns + metaSchema }
func (t *Table) colTimestamp() int   { return t.NumColumns + metaTimestamp }

// ---------- accès aux page-ranges ----------

func (t *Table) getRange(id int) (*pageRange, bool) {
	t.rangesMu.RLock()
	defer t.rangesMu.RUnlock()
	pr, ok := t.ranges[id]
	return pr, ok
}

// currentPageRangeForInsert retourne le range ouvert pour les prochaines
// écritures de base, en en ouvrant un nouveau si le range courant a atteint
// sa capacité : si plein, on ouvre un nouveau page range.
func (t *Table) currentPageRangeForInsert() *pageRange {
	t.rangesMu.Lock()
	defer t.rangesMu.Unlock()
	pr, ok := t.ranges[t.currentRangeID]
	if !ok {
		pr = newPageRange(t.currentRangeID)
		t.ranges[t.currentRangeID] = pr
	}
	if pr.base.pageIndex*storage.Capacity+pr.base.slot >= recordsPerRange {
		t.currentRangeID++
		pr = newPageRange(t.currentRangeID)
		t.ranges[t.currentRangeID] = pr
	}
	return pr
}

// ---------- accès bas niveau aux pages ----------

func (t *Table) pageKey(rangeID int, set storage.Set, col, pageIndex int) storage.PageKey {
	return storage.PageKey{Table: t.Name, Range: rangeID, Set: set, Col: col, Index: pageIndex}
}

func (t *Table) readCell(loc directory.Location, col int) (int64, error) {
	key := t.pageKey(loc.Range, loc.Set, col, loc.Page)
	frame, err := t.bp.Fetch(key)
	if err != nil {
		return 0, err
	}
	v := frame.Page.Read(loc.Slot)
	t.bp.Unpin(key, false)
	return v, nil
}

func (t *Table) writeCell(loc directory.Location, col int, value int64) error {
	key := t.pageKey(loc.Range, loc.Set, col, loc.Page)
	frame, err := t.bp.Fetch(key)
	if err != nil {
		return err
	}
	frame.Page.Overwrite(loc.Slot, value)
	t.bp.Unpin(key, true)
	return nil
}

func (t *Table) readUserColumns(loc directory.Location) ([]int64, error) {
	vals := make([]int64, t.NumColumns)
	for c := 0; c < t.NumColumns; c++ {
		v, err := t.readCell(loc, c)
		if err != nil {
			return nil, err
		}
		vals[c] = v
	}
	return vals, nil
}

// appendRow écrit une ligne complète (colonnes utilisateur + métadonnées) en
// lockstep sur toutes les colonnes d'un même (range, set), à la position
// courante du curseur, en ouvrant une nouvelle page pour toutes les colonnes
// à la fois si la page courante est pleine.
func (t *Table) appendRow(pr *pageRange, set storage.Set, fullRow []int64) (directory.Location, error) {
	cur := &pr.base
	if set == storage.Tail {
		cur = &pr.tail
	}
	if cur.full() {
		cur.advance()
	}
	newPage := cur.slot == 0
	loc := directory.Location{Range: pr.id, Set: set, Page: cur.pageIndex, Slot: cur.slot}

	for col, v := range fullRow {
		key := t.pageKey(pr.id, set, col, cur.pageIndex)
		var frame *storage.Frame
		var err error
		if newPage {
			frame, err = t.bp.NewPage(key)
		} else {
			frame, err = t.bp.Fetch(key)
		}
		if err != nil {
			return directory.Location{}, err
		}
		frame.Page.Write(v)
		t.bp.Unpin(key, true)
	}
	cur.slot++
	if set == storage.Tail && newPage {
		pr.tailPagesSinceMerge++
	}
	return loc, nil
}

func (t *Table) flushAndCommit() error {
	if err := t.bp.FlushAll(); err != nil {
		return internalError("flush", err)
	}
	if err := t.disk.Commit(); err != nil {
		return internalError("commit", err)
	}
	return nil
}

// readFullRow lit l'état d'un record à la version demandée (0 = dernière,
// -k = k mises à jour en arrière, saturant à la base si la chaîne est plus
// courte que k). Retourne deleted=true si le RID de base porte un tombstone.
func (t *Table) readFullRow(rid int64, version int) (values []int64, deleted bool, err error) {
	baseLoc, ok := t.dir.Translate(rid)
	if !ok {
		return nil, false, fmt.Errorf("table: rid %d not registered", rid)
	}
	head, err := t.readCell(baseLoc, t.colIndirection())
	if err != nil {
		return nil, false, err
	}
	if head == Tombstone {
		return nil, true, nil
	}

	steps := 0
	if version < 0 {
		steps = -version
	}

	curRID := head
	idx := 0
	for curRID != Sentinel && idx < steps {
		loc, ok := t.dir.Translate(curRID)
		if !ok {
			return nil, false, fmt.Errorf("table: tail rid %d not registered", curRID)
		}
		next, err := t.readCell(loc, t.colIndirection())
		if err != nil {
			return nil, false, err
		}
		curRID = next
		idx++
	}

	targetLoc := baseLoc
	if curRID != Sentinel {
		loc, ok := t.dir.Translate(curRID)
		if !ok {
			return nil, false, fmt.Errorf("table: tail rid %d not registered", curRID)
		}
		targetLoc = loc
	}
	vals, err := t.readUserColumns(targetLoc)
	return vals, false, err
}

// ---------- opérations publiques ----------

// Insert crée un record de base. Fails with ErrDuplicateKey if the primary
// key already exists.
func (t *Table) Insert(values []int64) (int64, error) {
	if len(values) != t.NumColumns {
		return 0, badArgument("insert: expected %d values, got %d", t.NumColumns, len(values))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pkValue := values[t.PKIndex]
	if t.primary.Has(pkValue) {
		return 0, ErrDuplicateKey
	}

	rid := t.nextBaseRID
	pr := t.currentPageRangeForInsert()

	fullRow := make([]int64, t.totalColumns())
	copy(fullRow, values)
	fullRow[t.colIndirection()] = Sentinel
	fullRow[t.colRID()] = rid
	fullRow[t.colSchema()] = 0
	fullRow[t.colTimestamp()] = t.tsCounter

	pr.mu.RLock()
	loc, err := t.appendRow(pr, storage.Base, fullRow)
	pr.mu.RUnlock()
	if err != nil {
		return 0, internalError("insert", err)
	}

	t.dir.Register(rid, loc)
	_ = t.primary.Add(pkValue, rid)
	t.secondary.OnInsert(values, rid)

	t.nextBaseRID++
	t.tsCounter++

	if err := t.flushAndCommit(); err != nil {
		return 0, err
	}
	return rid, nil
}

// Select returns every live record whose current-version searchCol value
// equals searchValue, projected per projection (dense form).
func (t *Table) Select(searchValue int64, searchCol int, projection []int) ([]Result, error) {
	return t.selectAt(searchValue, searchCol, projection, 0)
}

// SelectVersion is Select, but projects columns from `version` steps back in
// the chain. version > 0 is treated as 0.
func (t *Table) SelectVersion(searchValue int64, searchCol int, projection []int, version int) ([]Result, error) {
	if version > 0 {
		version = 0
	}
	return t.selectAt(searchValue, searchCol, projection, version)
}

func (t *Table) selectAt(searchValue int64, searchCol int, projection []int, version int) ([]Result, error) {
	if len(projection) != t.NumColumns {
		return nil, badArgument("select: projection length %d != %d", len(projection), t.NumColumns)
	}
	if searchCol < 0 || searchCol >= t.NumColumns {
		return nil, badArgument("select: search column %d out of bounds", searchCol)
	}

	t.mu.RLock()
	rids, err := t.searchRIDs(searchValue, searchCol)
	t.mu.RUnlock()
	if err != nil {
		return nil, internalError("select", err)
	}

	results := make([]Result, 0, len(rids))
	for _, rid := range rids {
		values, deleted, err := t.readFullRow(rid, version)
		if err != nil {
			return nil, internalError("select", err)
		}
		if deleted {
			continue
		}
		results = append(results, Result{RID: rid, Columns: project(values, projection)})
	}
	return results, nil
}

// searchRIDs resolves candidate RIDs for searchCol/searchValue using the
// primary index (searchCol == PKIndex), a secondary index if one exists, or
// a full scan over every live RID as a fallback. Matching always uses the
// *current* version: the secondary index tracks current values only, so
// version only selects which snapshot is projected, never which records
// match (see the design notes on version-invariant search).
func (t *Table) searchRIDs(searchValue int64, searchCol int) ([]int64, error) {
	if searchCol == t.PKIndex {
		rid, ok := t.primary.Lookup(searchValue)
		if !ok {
			return nil, nil
		}
		return []int64{rid}, nil
	}
	if sec, ok := t.secondary.Get(searchCol); ok {
		return sec.Lookup(searchValue), nil
	}
	candidates := t.primary.AllRIDs()
	var out []int64
	for _, rid := range candidates {
		values, deleted, err := t.readFullRow(rid, 0)
		if err != nil {
			return nil, err
		}
		if deleted {
			continue
		}
		if values[searchCol] == searchValue {
			out = append(out, rid)
		}
	}
	return out, nil
}

func project(values []int64, projection []int) []int64 {
	out := make([]int64, 0, len(values))
	for i, keep := range projection {
		if keep != 0 {
			out = append(out, values[i])
		}
	}
	return out
}

// Update applies newOrNone (length NumColumns, Keep entries left unchanged)
// to the record whose primary key is pk, appending a new tail record that
// carries a full column snapshot. Changing the primary key to one already
// present fails ErrDuplicateKey.
func (t *Table) Update(pk int64, newOrNone []ColumnUpdate) error {
	if len(newOrNone) != t.NumColumns {
		return badArgument("update: update mask length %d != %d", len(newOrNone), t.NumColumns)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rid, ok := t.primary.Lookup(pk)
	if !ok {
		return ErrKeyNotFound
	}
	baseLoc, ok := t.dir.Translate(rid)
	if !ok {
		return internalError("update", fmt.Errorf("rid %d not registered", rid))
	}

	head, err := t.readCell(baseLoc, t.colIndirection())
	if err != nil {
		return internalError("update", err)
	}
	if head == Tombstone {
		return ErrKeyNotFound
	}

	currentValues, deleted, err := t.readFullRow(rid, 0)
	if err != nil {
		return internalError("update", err)
	}
	if deleted {
		return ErrKeyNotFound
	}

	newValues := make([]int64, t.NumColumns)
	var mask int64
	for i := 0; i < t.NumColumns; i++ {
		if newOrNone[i].Set {
			newValues[i] = newOrNone[i].Value
			mask |= 1 << uint(i)
		} else {
			newValues[i] = currentValues[i]
		}
	}

	newPK := newValues[t.PKIndex]
	pkChanged := newPK != pk
	if pkChanged && t.primary.Has(newPK) {
		return ErrDuplicateKey
	}

	pr, ok := t.getRange(baseLoc.Range)
	if !ok {
		return internalError("update", fmt.Errorf("range %d missing", baseLoc.Range))
	}

	tailRID := TailRIDBase + t.nextTailLocal
	ts := t.tsCounter

	fullTailRow := make([]int64, t.totalColumns())
	copy(fullTailRow, newValues)
	fullTailRow[t.colIndirection()] = head
	fullTailRow[t.colRID()] = tailRID
	fullTailRow[t.colSchema()] = mask
	fullTailRow[t.colTimestamp()] = ts

	pr.mu.RLock()
	tailLoc, err := t.appendRow(pr, storage.Tail, fullTailRow)
	if err != nil {
		pr.mu.RUnlock()
		return internalError("update", err)
	}
	baseSchema, err := t.readCell(baseLoc, t.colSchema())
	if err != nil {
		pr.mu.RUnlock()
		return internalError("update", err)
	}
	if err := t.writeCell(baseLoc, t.colIndirection(), tailRID); err != nil {
		pr.mu.RUnlock()
		return internalError("update", err)
	}
	if err := t.writeCell(baseLoc, t.colSchema(), baseSchema|mask); err != nil {
		pr.mu.RUnlock()
		return internalError("update", err)
	}
	pr.mu.RUnlock()

	t.dir.Register(tailRID, tailLoc)
	t.nextTailLocal++
	t.tsCounter++

	if pkChanged {
		if err := t.primary.Rename(pk, newPK, rid); err != nil {
			return internalError("update", err)
		}
	}
	t.secondary.OnUpdate(currentValues, newValues, rid)

	return t.flushAndCommit()
}

// Delete marks the base record for pk as deleted (tombstone indirection,
// removed from the primary index); its slot is never reclaimed.
func (t *Table) Delete(pk int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rid, ok := t.primary.Lookup(pk)
	if !ok {
		return ErrKeyNotFound
	}
	baseLoc, ok := t.dir.Translate(rid)
	if !ok {
		return internalError("delete", fmt.Errorf("rid %d not registered", rid))
	}

	currentValues, deleted, err := t.readFullRow(rid, 0)
	if err != nil {
		return internalError("delete", err)
	}
	if deleted {
		return ErrKeyNotFound
	}

	pr, ok := t.getRange(baseLoc.Range)
	if !ok {
		return internalError("delete", fmt.Errorf("range %d missing", baseLoc.Range))
	}
	pr.mu.RLock()
	err = t.writeCell(baseLoc, t.colIndirection(), Tombstone)
	pr.mu.RUnlock()
	if err != nil {
		return internalError("delete", err)
	}

	t.primary.Remove(pk)
	t.secondary.OnDelete(currentValues, rid)

	return t.flushAndCommit()
}

// Sum returns the arithmetic sum of the current-version col values over
// live records with PK in [pkLow, pkHigh].
func (t *Table) Sum(pkLow, pkHigh int64, col int) (int64, error) {
	return t.sumAt(pkLow, pkHigh, col, 0)
}

// SumVersion is Sum using a versioned read (version > 0 treated as 0).
func (t *Table) SumVersion(pkLow, pkHigh int64, col int, version int) (int64, error) {
	if version > 0 {
		version = 0
	}
	return t.sumAt(pkLow, pkHigh, col, version)
}

func (t *Table) sumAt(pkLow, pkHigh int64, col int, version int) (int64, error) {
	if pkLow > pkHigh {
		return 0, badArgument("sum: inverted range [%d, %d]", pkLow, pkHigh)
	}
	if col < 0 || col >= t.NumColumns {
		return 0, badArgument("sum: column %d out of bounds", col)
	}

	t.mu.RLock()
	rids := t.primary.RangeRIDs(pkLow, pkHigh)
	t.mu.RUnlock()

	var total int64
	for _, rid := range rids {
		values, deleted, err := t.readFullRow(rid, version)
		if err != nil {
			return 0, internalError("sum", err)
		}
		if deleted {
			continue
		}
		total += values[col]
	}
	return total, nil
}

// CreateIndex builds a secondary index over col by scanning every live
// record's current value.
func (t *Table) CreateIndex(col int) error {
	if col < 0 || col >= t.NumColumns {
		return badArgument("create_index: column %d out of bounds", col)
	}
	if col == t.PKIndex {
		return badArgument("create_index: column %d is the primary key, already indexed", col)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sec, err := t.secondary.Create(col)
	if err != nil {
		return badArgument("%s", err)
	}
	for _, rid := range t.primary.AllRIDs() {
		values, deleted, err := t.readFullRow(rid, 0)
		if err != nil {
			return internalError("create_index", err)
		}
		if deleted {
			continue
		}
		sec.Add(values[col], rid)
	}
	return nil
}

// DropIndex frees the secondary index over col, if any.
func (t *Table) DropIndex(col int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.secondary.Drop(col)
	return nil
}

// ---------- support pour le merge worker ----------

// CandidateRanges returns the ids of page-ranges whose tail-page count has
// crossed MergeThreshold and are therefore eligible for compaction.
func (t *Table) CandidateRanges() []int {
	t.rangesMu.RLock()
	defer t.rangesMu.RUnlock()
	var out []int
	for id, pr := range t.ranges {
		pr.mu.RLock()
		if pr.tailPagesSinceMerge >= t.MergeThreshold {
			out = append(out, id)
		}
		pr.mu.RUnlock()
	}
	return out
}

// MergeRange captures a read-only snapshot of every live record's current
// chain head in the given range and resets its tail-growth counter. It never
// rewrites a base slot's columns, schema bitmap, or indirection pointer:
// tail pages are never physically reclaimed (only tailPagesSinceMerge
// resets), so the full version chain behind every RID in the range stays
// exactly as long after a merge as before it. Rewriting a base slot with the
// chain head's values, even leaving indirection alone, would still corrupt
// every version read deep enough to exhaust the chain and fall back to the
// base: that fallback is supposed to return the original insert snapshot,
// and a merge that overwrote it would silently replace that snapshot with
// whatever was most recent at merge time. So a merge changes nothing a
// reader can observe; it only produces an archived snapshot for
// inspectability and clears the counter that schedules the next merge.
func (t *Table) MergeRange(rangeID int) error {
	pr, ok := t.getRange(rangeID)
	if !ok {
		return badArgument("merge: range %d does not exist", rangeID)
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()

	// Primary.AllRIDs is self-synchronized (its own RWMutex): taking t.mu
	// here too would invert the lock order Insert/Update/Delete use
	// (t.mu then pr.mu) and risk a deadlock against a concurrent mutation.
	liveRIDs := t.primary.AllRIDs()

	var archived []storage.PageKey
	mergedCount := 0

	for _, rid := range liveRIDs {
		baseLoc, ok := t.dir.Translate(rid)
		if !ok || baseLoc.Range != rangeID {
			continue
		}

		head, err := t.readCell(baseLoc, t.colIndirection())
		if err != nil {
			return internalError("merge", err)
		}
		if head == Sentinel {
			continue
		}

		headLoc, ok := t.dir.Translate(head)
		if !ok {
			return internalError("merge", fmt.Errorf("tail rid %d not registered", head))
		}
		for col := 0; col < t.NumColumns; col++ {
			key := t.pageKey(headLoc.Range, headLoc.Set, col, headLoc.Page)
			archived = append(archived, key)
		}
		mergedCount++
	}

	if len(archived) > 0 {
		archivePath := fmt.Sprintf("tables/%s/archive/range_%d_merge.snappy", t.Name, rangeID)
		if err := storage.ArchivePages(t.disk, archivePath, archived); err != nil {
			t.log.Warnf("range %d: archive snapshot failed: %v", rangeID, err)
		}
	}

	pr.tailPagesSinceMerge = 0
	t.log.Logt(dblog.Info, "merged range %d: %d chained records snapshotted", rangeID, mergedCount)

	return t.flushAndCommit()
}

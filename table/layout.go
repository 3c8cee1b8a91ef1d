// Package table compose les répertoires de pages, les index et le pool de
// buffers pour exposer les opérations d'une table : insert, select,
// select_version, update, delete, sum, sum_version.
package table

import (
	"sync"

	"github.com/Felmond13/lstoredb/directory"
	"github.com/Felmond13/lstoredb/storage"
)

// Sentinel termine une chaîne de version (pas de tail record).
const Sentinel int64 = -1

// Tombstone marque un RID de base supprimé dans la colonne indirection.
const Tombstone int64 = -2

// TailRIDBase sépare l'espace des RID de base (0..∞) de celui des RID de
// tail, pour que les deux espaces restent disjoints.
const TailRIDBase int64 = 1 << 40

// basePagesPerRange borne le nombre de pages de base par colonne dans un
// page-range (16 pages ⇒ 16·511 ≈ 8176 records de base par range).
const basePagesPerRange = 16

// recordsPerRange est la capacité en records de base d'un page-range.
const recordsPerRange = basePagesPerRange * storage.Capacity

// DefaultMergeThreshold est le nombre de pages tail (par colonne) à partir
// duquel un page-range devient candidat à la fusion.
const DefaultMergeThreshold = basePagesPerRange

// Métadonnées ajoutées après les N colonnes utilisateur.
const (
	metaIndirection = 0
	metaRID         = 1
	metaSchema      = 2
	metaTimestamp   = 3
	metaColumns     = 4
)

// cursor suit la position d'écriture courante (page, slot) pour un jeu de
// colonnes en lockstep : toutes les colonnes d'un même (range, set) reçoivent
// leur Nᵉ écriture dans le même (pageIndex, slot), ce qui permet au
// PageDirectory de localiser un record sur toutes ses colonnes avec un seul
// Location.
type cursor struct {
	pageIndex int
	slot      int // nombre de records déjà écrits dans la page courante
}

func (c *cursor) full() bool { return c.slot >= storage.Capacity }

func (c *cursor) advance() {
	c.pageIndex++
	c.slot = 0
}

// pageRange regroupe l'état d'écriture (curseurs base/tail) d'un page-range
// et son verrou de cohérence vis-à-vis du merge worker : les opérations
// normales de table prennent RLock, une fusion prend Lock le temps de sa
// passe complète.
type pageRange struct {
	mu sync.RWMutex

	id int

	base cursor
	tail cursor

	tailPagesSinceMerge int
}

func newPageRange(id int) *pageRange {
	return &pageRange{id: id}
}

// location construit un directory.Location pour la position courante du
// curseur donné (base ou tail) dans ce range.
func location(rangeID int, set storage.Set, c cursor) directory.Location {
	return directory.Location{Range: rangeID, Set: set, Page: c.pageIndex, Slot: c.slot}
}

// Package directory implémente le répertoire de pages : l'unique indirection
// entre un RID logique et son emplacement physique (page-range, jeu
// base/tail, page, slot).
package directory

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Felmond13/lstoredb/storage"
)

// Location est l'emplacement physique d'un record.
type Location struct {
	Range int
	Set   storage.Set
	Page  int
	Slot  int
}

// Directory mappe RID → Location. Une entrée n'est réécrite que par Update,
// atomique du point de vue des lecteurs concurrents. Le merge de table.Table
// n'appelle pas Update : une fusion ne déplace aucun RID.
type Directory struct {
	mu      sync.RWMutex
	entries map[int64]Location
}

// New crée un répertoire vide.
func New() *Directory {
	return &Directory{entries: make(map[int64]Location)}
}

// Translate retourne l'emplacement d'un RID.
func (d *Directory) Translate(rid int64) (Location, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	loc, ok := d.entries[rid]
	return loc, ok
}

// Register associe un RID neuf à son emplacement (insert).
func (d *Directory) Register(rid int64, loc Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[rid] = loc
}

// Update réécrit l'emplacement d'un RID existant ; chaque appel est
// atomique. Aucun code du module hors des tests ne l'appelle : le merge de
// table.Table ne bascule aucun RID vers de nouvelles pages.
func (d *Directory) Update(rid int64, loc Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[rid] = loc
}

// Len retourne le nombre d'entrées enregistrées.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// entry record sur disque : [RID:8][Range:4][Set:1][Page:4][Slot:4] = 21 bytes
const entrySize = 8 + 4 + 1 + 4 + 4

// Encode sérialise le répertoire entier (tables/<name>/page_directory.bin).
func (d *Directory) Encode() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	buf := make([]byte, 4+len(d.entries)*entrySize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(d.entries)))
	off := 4
	for rid, loc := range d.entries {
		binary.LittleEndian.PutUint64(buf[off:], uint64(rid))
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(loc.Range))
		off += 4
		buf[off] = byte(loc.Set)
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(loc.Page))
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], uint32(loc.Slot))
		off += 4
	}
	return buf
}

// Decode reconstruit un répertoire à partir de sa forme sérialisée.
func Decode(buf []byte) (*Directory, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("directory: truncated header")
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	d := New()
	off := 4
	for i := 0; i < count; i++ {
		if off+entrySize > len(buf) {
			return nil, fmt.Errorf("directory: truncated entry %d", i)
		}
		rid := int64(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
		rangeID := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		set := storage.Set(buf[off])
		off++
		page := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		slot := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		d.entries[rid] = Location{Range: rangeID, Set: set, Page: page, Slot: slot}
	}
	return d, nil
}

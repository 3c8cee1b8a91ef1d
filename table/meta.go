package table

import "encoding/binary"

// rangeState est la forme persistée de l'état d'écriture d'un page-range :
// curseurs base/tail et compteur de pages tail depuis la dernière fusion.
type rangeState struct {
	basePage, baseSlot  uint32
	tailPage, tailSlot  uint32
	tailPagesSinceMerge uint32
}

// meta est le contenu persisté de tables/<name>/meta :
// {num_columns, pk_index, next_base_rid, next_tail_rid, timestamp_counter,
// page_range_count}, étendu avec l'état de curseur par range pour pouvoir
// reprendre l'écriture exactement où elle s'était arrêtée.
type meta struct {
	numColumns     uint32
	pkIndex        uint32
	nextBaseRID    int64
	nextTailLocal  int64
	tsCounter      int64
	currentRangeID uint32
	ranges         []rangeState
}

func (m *meta) encode() []byte {
	size := 4 + 4 + 8 + 8 + 8 + 4 + 4 + len(m.ranges)*20
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], m.numColumns)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], m.pkIndex)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.nextBaseRID))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.nextTailLocal))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.tsCounter))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], m.currentRangeID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.ranges)))
	off += 4
	for _, r := range m.ranges {
		binary.LittleEndian.PutUint32(buf[off:], r.basePage)
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], r.baseSlot)
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], r.tailPage)
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], r.tailSlot)
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], r.tailPagesSinceMerge)
		off += 4
	}
	return buf
}

func decodeMeta(buf []byte) (*meta, error) {
	if len(buf) < 40 {
		return nil, errTruncatedMeta
	}
	m := &meta{}
	off := 0
	m.numColumns = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.pkIndex = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.nextBaseRID = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	m.nextTailLocal = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	m.tsCounter = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	m.currentRangeID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	count := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.ranges = make([]rangeState, count)
	for i := range m.ranges {
		if off+20 > len(buf) {
			return nil, errTruncatedMeta
		}
		m.ranges[i] = rangeState{
			basePage:            binary.LittleEndian.Uint32(buf[off:]),
			baseSlot:            binary.LittleEndian.Uint32(buf[off+4:]),
			tailPage:            binary.LittleEndian.Uint32(buf[off+8:]),
			tailSlot:            binary.LittleEndian.Uint32(buf[off+12:]),
			tailPagesSinceMerge: binary.LittleEndian.Uint32(buf[off+16:]),
		}
		off += 20
	}
	return m, nil
}

package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/snappy"
)

// WALRecordType identifie le type d'entrée enregistrée dans le write-ahead log.
type WALRecordType byte

const (
	WALPageWrite WALRecordType = 1 // écriture d'une page (after-image)
	WALCommit    WALRecordType = 2 // marqueur de commit
)

// walHeaderSize est la taille de l'en-tête de fichier WAL.
// [0:4] magic ("LWAL") [4:8] version (uint32)
const walHeaderSize = 8

var walMagic = [4]byte{'L', 'W', 'A', 'L'}

// WALRecord est une entrée du write-ahead log. Pour les écritures de page,
// Data est l'image de la page après compression snappy : contrairement au
// format de page sur disque, figé par la mise en page des colonnes, le WAL
// est un journal interne dont le format n'est pas contraint, et ses
// after-images se compriment bien (pages creuses, beaucoup de zéros).
type WALRecord struct {
	LSN  uint64
	Type WALRecordType
	Key  PageKey
	Data []byte // image compressée de la page (WALPageWrite uniquement)
}

// WAL gère le write-ahead log associé à une base de données.
type WAL struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	nextLSN   uint64
	records   []WALRecord
	commitLSN uint64
}

// OpenWAL ouvre ou crée le WAL associé à dbPath (dbPath + ".wal").
func OpenWAL(dbPath string) (*WAL, error) {
	walPath := dbPath + ".wal"
	file, err := os.OpenFile(walPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: cannot open file: %w", err)
	}

	w := &WAL{file: file, path: walPath, nextLSN: 1}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := w.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
	} else {
		if err := w.readHeader(); err != nil {
			file.Close()
			return nil, err
		}
		if err := w.loadRecords(); err != nil {
			file.Close()
			return nil, err
		}
	}
	return w, nil
}

// Close ferme le fichier WAL.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// LogPageWrite enregistre l'after-image (compressée) d'une écriture de page.
func (w *WAL) LogPageWrite(key PageKey, afterImage []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN
	w.nextLSN++

	rec := WALRecord{LSN: lsn, Type: WALPageWrite, Key: key, Data: snappy.Encode(nil, afterImage)}
	if err := w.appendRecord(&rec); err != nil {
		return 0, err
	}
	w.records = append(w.records, rec)
	return lsn, nil
}

// Commit écrit un marqueur de commit et fsync le fichier : après cet appel,
// toutes les écritures précédentes sont durables.
func (w *WAL) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN
	w.nextLSN++
	rec := WALRecord{LSN: lsn, Type: WALCommit}
	if err := w.appendRecord(&rec); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync commit: %w", err)
	}
	w.commitLSN = lsn
	w.records = append(w.records, rec)
	return nil
}

// CommittedPageWrites retourne, dans l'ordre chronologique, les écritures de
// page dont le commit a été observé. Utilisé pour le recovery.
func (w *WAL) CommittedPageWrites() []WALRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	var committed, pending []WALRecord
	for _, r := range w.records {
		switch r.Type {
		case WALPageWrite:
			pending = append(pending, r)
		case WALCommit:
			committed = append(committed, pending...)
			pending = nil
		}
	}
	return committed
}

// Truncate vide le WAL après un checkpoint réussi.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(walHeaderSize); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := w.file.Seek(walHeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek after truncate: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync after truncate: %w", err)
	}
	w.records = nil
	w.commitLSN = 0
	return nil
}

// --- méthodes internes ---

func (w *WAL) writeHeader() error {
	var hdr [walHeaderSize]byte
	copy(hdr[0:4], walMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], 1)
	_, err := w.file.WriteAt(hdr[:], 0)
	return err
}

func (w *WAL) readHeader() error {
	var hdr [walHeaderSize]byte
	if _, err := w.file.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("wal: read header: %w", err)
	}
	if hdr[0] != walMagic[0] || hdr[1] != walMagic[1] || hdr[2] != walMagic[2] || hdr[3] != walMagic[3] {
		return fmt.Errorf("wal: invalid magic number")
	}
	return nil
}

// record sur disque : [LSN:8][Type:1][TableLen:2][Table][Range:4][Set:1][Col:4][Index:4][DataLen:4][Data][CRC32:4]
func (w *WAL) appendRecord(rec *WALRecord) error {
	tableBytes := []byte(rec.Key.Table)
	size := 8 + 1 + 2 + len(tableBytes) + 4 + 1 + 4 + 4 + 4 + len(rec.Data) + 4
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], rec.LSN)
	off += 8
	buf[off] = byte(rec.Type)
	off++
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(tableBytes)))
	off += 2
	copy(buf[off:], tableBytes)
	off += len(tableBytes)
	binary.LittleEndian.PutUint32(buf[off:], uint32(rec.Key.Range))
	off += 4
	buf[off] = byte(rec.Key.Set)
	off++
	binary.LittleEndian.PutUint32(buf[off:], uint32(rec.Key.Col))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(rec.Key.Index))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.Data)))
	off += 4
	copy(buf[off:], rec.Data)
	off += len(rec.Data)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wal: seek end: %w", err)
	}
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("wal: write record: %w", err)
	}
	return nil
}

func (w *WAL) loadRecords() error {
	w.records = nil
	offset := int64(walHeaderSize)

	for {
		fixed := make([]byte, 8+1+2)
		n, err := w.file.ReadAt(fixed, offset)
		if err == io.EOF || n < len(fixed) {
			break
		}
		if err != nil {
			return fmt.Errorf("wal: read record prefix at %d: %w", offset, err)
		}
		lsn := binary.LittleEndian.Uint64(fixed[0:8])
		rtype := WALRecordType(fixed[8])
		tableLen := int(binary.LittleEndian.Uint16(fixed[9:11]))

		rest := make([]byte, tableLen+4+1+4+4+4)
		n, err = w.file.ReadAt(rest, offset+int64(len(fixed)))
		if err == io.EOF || n < len(rest) {
			break
		}
		if err != nil {
			return fmt.Errorf("wal: read record fields at %d: %w", offset, err)
		}
		p := 0
		table := string(rest[p : p+tableLen])
		p += tableLen
		rangeID := int(binary.LittleEndian.Uint32(rest[p:]))
		p += 4
		set := Set(rest[p])
		p++
		col := int(binary.LittleEndian.Uint32(rest[p:]))
		p += 4
		index := int(binary.LittleEndian.Uint32(rest[p:]))
		p += 4
		dataLen := int(binary.LittleEndian.Uint32(rest[p:]))

		tail := make([]byte, dataLen+4)
		n, err = w.file.ReadAt(tail, offset+int64(len(fixed))+int64(len(rest)))
		if err == io.EOF || n < len(tail) {
			break
		}
		if err != nil {
			return fmt.Errorf("wal: read record data at %d: %w", offset, err)
		}

		recordLen := len(fixed) + len(rest) + dataLen
		full := make([]byte, recordLen)
		copy(full, fixed)
		copy(full[len(fixed):], rest)
		copy(full[len(fixed)+len(rest):], tail[:dataLen])
		storedCRC := binary.LittleEndian.Uint32(tail[dataLen:])
		if crc32.ChecksumIEEE(full) != storedCRC {
			break // entrée corrompue (crash pendant écriture) : on s'arrête, le reste est perdu
		}

		rec := WALRecord{
			LSN:  lsn,
			Type: rtype,
			Key:  PageKey{Table: table, Range: rangeID, Set: set, Col: col, Index: index},
			Data: append([]byte(nil), tail[:dataLen]...),
		}
		w.records = append(w.records, rec)
		if lsn >= w.nextLSN {
			w.nextLSN = lsn + 1
		}
		if rtype == WALCommit && lsn > w.commitLSN {
			w.commitLSN = lsn
		}
		offset += int64(recordLen) + 4
	}
	return nil
}

// DecodePage décompresse l'after-image d'un WALRecord en une page complète.
func DecodePage(rec WALRecord) (*Page, error) {
	raw, err := snappy.Decode(nil, rec.Data)
	if err != nil {
		return nil, fmt.Errorf("wal: snappy decode: %w", err)
	}
	if len(raw) != PageSize {
		return nil, fmt.Errorf("wal: decoded page has wrong size %d", len(raw))
	}
	page := NewPage()
	copy(page.Data[:], raw)
	return page, nil
}

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPageNotFound est retourné quand une page n'a jamais été écrite sur disque.
var ErrPageNotFound = errors.New("storage: page not found")

// DiskManager lit et écrit des pages de taille fixe sous une racine de
// répertoire. Chaque page est un fichier individuel adressé par PageKey :
// une page par colonne, par page-range, par jeu base/tail.
type DiskManager struct {
	root string
	wal  *WAL // toujours ouvert par NewDiskManager
}

// NewDiskManager ouvre (en créant si besoin) un gestionnaire de disque
// enraciné sous root, avec son write-ahead log, et rejoue le WAL si des
// écritures commitées n'avaient pas encore été appliquées au moment d'un
// crash précédent.
func NewDiskManager(root string) (*DiskManager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("storage: cannot create root %q: %w", root, err)
	}
	wal, err := OpenWAL(filepath.Join(root, "wal"))
	if err != nil {
		return nil, fmt.Errorf("storage: open wal: %w", err)
	}
	d := &DiskManager{root: root, wal: wal}
	if err := d.recover(); err != nil {
		wal.Close()
		return nil, err
	}
	return d, nil
}

// recover rejoue les écritures de page dont le commit a été observé dans le
// WAL, afin de reconstruire l'état d'avant-crash avant que quiconque ne lise.
func (d *DiskManager) recover() error {
	for _, rec := range d.wal.CommittedPageWrites() {
		page, err := DecodePage(rec)
		if err != nil {
			return fmt.Errorf("storage: recovery: %w", err)
		}
		if err := d.writePageFile(rec.Key, page); err != nil {
			return fmt.Errorf("storage: recovery write %v: %w", rec.Key, err)
		}
	}
	return d.wal.Truncate()
}

// Checkpoint tronque le WAL. Il n'écrit ni ne fsync aucun fichier de page :
// les pages journalisées ont déjà été écrites par WritePage, sans fsync.
func (d *DiskManager) Checkpoint() error {
	return d.wal.Truncate()
}

// Close ferme le WAL associé au gestionnaire de disque.
func (d *DiskManager) Close() error {
	return d.wal.Close()
}

// Root retourne la racine du répertoire de la base.
func (d *DiskManager) Root() string { return d.root }

func (d *DiskManager) abs(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

// ReadPage lit une page existante depuis le disque.
func (d *DiskManager) ReadPage(key PageKey) (*Page, error) {
	data, err := os.ReadFile(d.abs(key.Path()))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read page %v: %w", key, err)
	}
	if len(data) != PageSize {
		return nil, fmt.Errorf("storage: corrupted page %v: size %d != %d", key, len(data), PageSize)
	}
	page := NewPage()
	copy(page.Data[:], data)
	return page, nil
}

// WritePage journalise l'after-image dans le WAL puis persiste la page.
// Le WAL garantit que la page peut être reconstruite si l'écriture directe
// est interrompue par un crash (short write) ; Commit doit être appelé pour
// marquer une limite de durabilité (cf. Table, qui l'appelle après chaque
// opération).
func (d *DiskManager) WritePage(key PageKey, page *Page) error {
	if _, err := d.wal.LogPageWrite(key, page.Data[:]); err != nil {
		return fmt.Errorf("storage: wal log %v: %w", key, err)
	}
	return d.writePageFile(key, page)
}

func (d *DiskManager) writePageFile(key PageKey, page *Page) error {
	path := d.abs(key.Path())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("storage: mkdir for page %v: %w", key, err)
	}
	if err := os.WriteFile(path, page.Data[:], 0644); err != nil {
		return fmt.Errorf("storage: write page %v: %w", key, err)
	}
	return nil
}

// Commit marque une limite de durabilité dans le WAL (fsync inclus).
func (d *DiskManager) Commit() error {
	return d.wal.Commit()
}

// CreatePage écrit une page neuve et vide pour la clé donnée.
func (d *DiskManager) CreatePage(key PageKey) (*Page, error) {
	page := NewPage()
	if err := d.WritePage(key, page); err != nil {
		return nil, err
	}
	return page, nil
}

// Exists indique si une page existe déjà sur disque.
func (d *DiskManager) Exists(key PageKey) bool {
	_, err := os.Stat(d.abs(key.Path()))
	return err == nil
}

// ReadFile lit un fichier auxiliaire (meta, page_directory.bin, index) relatif
// à la racine de la base.
func (d *DiskManager) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(d.abs(rel))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFile écrit un fichier auxiliaire, en créant les répertoires parents.
func (d *DiskManager) WriteFile(rel string, data []byte) error {
	path := d.abs(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("storage: mkdir for %q: %w", rel, err)
	}
	return os.WriteFile(path, data, 0644)
}

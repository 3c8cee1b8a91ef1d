package storage

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
)

// ArchivePages lit une liste de pages existantes et écrit leur concaténation
// compressée snappy sous relPath ; les pages manquantes sont ignorées.
// Utilisé par MergeRange pour archiver une copie des pages tail tête de
// chaîne au moment d'une fusion. Les pages sources restent en place et ne
// sont ni supprimées ni tronquées : l'archivage ne libère aucun espace.
func ArchivePages(disk *DiskManager, relPath string, keys []PageKey) error {
	raw := make([]byte, 0, len(keys)*PageSize)
	for _, key := range keys {
		page, err := disk.ReadPage(key)
		if err != nil {
			if err == ErrPageNotFound {
				continue
			}
			return fmt.Errorf("storage: archive read %v: %w", key, err)
		}
		raw = append(raw, page.Data[:]...)
	}
	compressed := snappy.Encode(nil, raw)
	return disk.WriteFile(relPath, compressed)
}

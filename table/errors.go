package table

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Les classes d'erreur recouvrables exposées à l'appelant. Table traduit
// toute faute de plus bas niveau (index, directory, buffer pool, disque)
// dans l'une de ces classes, ou dans une internalError, avant de la
// remonter.
var (
	ErrDuplicateKey = errors.New("table: duplicate primary key")
	ErrKeyNotFound  = errors.New("table: primary key not found")
	ErrBadArgument  = errors.New("table: bad argument")
)

var errTruncatedMeta = errors.New("table: truncated meta file")

// badArgument enrichit ErrBadArgument avec un message contextuel.
func badArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadArgument, fmt.Sprintf(format, args...))
}

// internalError enveloppe une faute fatale (I/O, pool de buffers, page
// corrompue) avec une trace de pile : cette classe remonte telle quelle
// à l'hôte, sans tentative de rollback supplémentaire.
func internalError(op string, err error) error {
	return pkgerrors.Wrapf(err, "table: internal error during %s", op)
}

package txn

import (
	"sync"

	"github.com/google/uuid"
)

// Worker possède une liste de transactions et un fil d'exécution dédié.
// Run() lance le fil, qui exécute chaque transaction en séquence ; Join()
// attend sa terminaison. Plusieurs workers peuvent tourner en parallèle :
// leur concurrence est arbitrée par le verrouillage au niveau record, pas
// par ce type.
type Worker struct {
	ID uuid.UUID

	txns  []*Transaction
	stats Stats

	wg sync.WaitGroup
}

// NewWorker crée un worker portant la liste de transactions fournie.
func NewWorker(txns []*Transaction) *Worker {
	return &Worker{ID: uuid.New(), txns: txns}
}

// Add enqueue une transaction supplémentaire avant Run().
func (w *Worker) Add(t *Transaction) {
	w.txns = append(w.txns, t)
}

// Run lance l'exécution séquentielle des transactions du worker dans une
// goroutine dédiée.
func (w *Worker) Run() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for _, t := range w.txns {
			committed, err := t.Run()
			switch {
			case err != nil:
				w.stats.recordInternal()
			case committed:
				w.stats.recordCommit()
			default:
				w.stats.recordAbort()
			}
		}
	}()
}

// Join attend la terminaison du fil du worker.
func (w *Worker) Join() {
	w.wg.Wait()
}

// Stats retourne un instantané des compteurs du worker.
func (w *Worker) Stats() Stats {
	return w.stats.snapshot()
}

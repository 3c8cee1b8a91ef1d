package txn

import "sync/atomic"

// Stats compte les issues de transaction observées par un Worker : validée,
// avortée (conflit ou échec recouvrable), ou interrompue par une faute
// Internal.
type Stats struct {
	committed int64
	aborted   int64
	internal  int64
}

func (s *Stats) recordCommit()   { atomic.AddInt64(&s.committed, 1) }
func (s *Stats) recordAbort()    { atomic.AddInt64(&s.aborted, 1) }
func (s *Stats) recordInternal() { atomic.AddInt64(&s.internal, 1) }

// Committed retourne le nombre de transactions validées.
func (s *Stats) Committed() int64 { return atomic.LoadInt64(&s.committed) }

// Aborted retourne le nombre de transactions avortées (conflit ou échec
// recouvrable).
func (s *Stats) Aborted() int64 { return atomic.LoadInt64(&s.aborted) }

// Internal retourne le nombre de transactions interrompues par une faute
// Internal.
func (s *Stats) Internal() int64 { return atomic.LoadInt64(&s.internal) }

func (s *Stats) snapshot() Stats {
	return Stats{
		committed: s.Committed(),
		aborted:   s.Aborted(),
		internal:  s.Internal(),
	}
}

package services

import (
	"math"
	"sort"

	"github.com/ticket-similarity-api/internal/models"
)

// flatIndex is an exact nearest-neighbor index over corpus embeddings,
// rebuilt for every query. Entries keep corpus insertion order.
type flatIndex struct {
	entries []models.IndexedTicket
}

func newFlatIndex(entries []models.IndexedTicket) *flatIndex {
	return &flatIndex{entries: entries}
}

// search ranks entries by cosine distance ascending and returns at most k.
// Equal distances keep insertion order, so the first-seen record wins.
func (idx *flatIndex) search(query []float64, k int) []models.ScoredTicket {
	scored := make([]models.ScoredTicket, len(idx.entries))
	for i, e := range idx.entries {
		scored[i] = models.ScoredTicket{
			TicketID: e.Record.ID,
			Score:    cosineSimilarity(query, e.Embedding),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

// cosineSimilarity returns 0 for zero vectors or mismatched dimensions
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isZeroVector(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// firstSeen returns the first k records with a zero score
func firstSeen(records []models.TicketRecord, k int) []models.ScoredTicket {
	n := min(k, len(records))
	scored := make([]models.ScoredTicket, n)
	for i := range n {
		scored[i] = models.ScoredTicket{TicketID: records[i].ID}
	}
	return scored
}

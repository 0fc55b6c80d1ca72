package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ticket-similarity-api/internal/models"
)

// DataPoint is one line of a Vertex AI Vector Search batch import file
type DataPoint struct {
	ID        string     `json:"id"`
	Embedding []float32  `json:"embedding"`
	Restricts []Restrict `json:"restricts,omitempty"`
}

// Restrict defines a token-based filter
type Restrict struct {
	Namespace string   `json:"namespace"`
	Allow     []string `json:"allow"`
}

// restrictNamespaces are the metadata keys exported as filter tokens
var restrictNamespaces = []string{models.MetaCategory, models.MetaPriority, models.MetaStatus}

// writeDataPoints writes one JSON object per line and returns the count
func writeDataPoints(w io.Writer, indexed []models.IndexedTicket) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for i, it := range indexed {
		dp := DataPoint{
			ID:        it.Record.ID,
			Embedding: make([]float32, len(it.Embedding)),
		}
		for j, v := range it.Embedding {
			dp.Embedding[j] = float32(v)
		}
		for _, ns := range restrictNamespaces {
			if v := it.Record.Metadata[ns]; v != "" {
				dp.Restricts = append(dp.Restricts, Restrict{Namespace: ns, Allow: []string{v}})
			}
		}
		if err := enc.Encode(dp); err != nil {
			return i, fmt.Errorf("encode %s: %w", dp.ID, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}
	return len(indexed), nil
}

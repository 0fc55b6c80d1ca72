package vertex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewVectorIndexRepository_RequiresIDs(t *testing.T) {
	_, err := NewVectorIndexRepository(context.Background(), Config{ProjectID: "p", Location: "us-central1"})
	assert.Error(t, err)
}

func TestResourceNames(t *testing.T) {
	r := &VectorIndexRepository{config: Config{
		ProjectID:       "support-prod",
		Location:        "europe-west1",
		IndexID:         "42",
		IndexEndpointID: "7",
	}}

	assert.Equal(t, "projects/support-prod/locations/europe-west1/indexes/42", r.indexName())
	assert.Equal(t, "projects/support-prod/locations/europe-west1/indexEndpoints/7", r.indexEndpointName())
	assert.Equal(t, []float32{1, -0.5}, toFloat32([]float64{1, -0.5}))
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reference é a pessoa procurada: um nome e os embeddings extraídos das
// imagens de referência
type Reference struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Provider   string      `json:"provider"`
	Embeddings [][]float64 `json:"-"`
	// Image is the first normalised reference image. Providers that compare
	// images instead of embeddings need it.
	Image     []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingCount is exposed in listings instead of the vectors
func (r *Reference) EmbeddingCount() int {
	return len(r.Embeddings)
}

// ReferenceView is the JSON shape returned by the API
type ReferenceView struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	Embeddings int       `json:"embeddings"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *Reference) View() ReferenceView {
	return ReferenceView{
		ID:         r.ID,
		Name:       r.Name,
		Provider:   r.Provider,
		Embeddings: r.EmbeddingCount(),
		CreatedAt:  r.CreatedAt,
	}
}

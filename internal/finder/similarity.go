package finder

import "math"

// CosineSimilarity calculates the cosine similarity between two embedding vectors.
// Returns a value between -1.0 (opposite) and 1.0 (identical), and 0 for
// vectors of different length or zero norm.
func CosineSimilarity(embedding1, embedding2 []float64) float64 {
	if len(embedding1) != len(embedding2) || len(embedding1) == 0 {
		return 0.0
	}

	var dotProduct, norm1, norm2 float64
	for i := range embedding1 {
		dotProduct += embedding1[i] * embedding2[i]
		norm1 += embedding1[i] * embedding1[i]
		norm2 += embedding2[i] * embedding2[i]
	}

	if norm1 == 0 || norm2 == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(norm1) * math.Sqrt(norm2))
}

// BestSimilarity returns the highest cosine similarity between embedding and
// any of the references, or 0 when there are none.
func BestSimilarity(embedding []float64, references [][]float64) float64 {
	if len(references) == 0 {
		return 0
	}
	best := math.Inf(-1)
	for _, ref := range references {
		if s := CosineSimilarity(embedding, ref); s > best {
			best = s
		}
	}
	return best
}

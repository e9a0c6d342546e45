// Package embeddings abstracts the text-embedding backend behind knowledge
// retrieval. The gateway embeds exactly two kinds of text: a caller's
// question at lookup time, and a knowledge-base chunk at indexing time. Both
// go through the single-text Embed call; there is no bulk path on the call
// side.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider turns text into a dense vector in the model's embedding space.
//
// Every vector from one Provider instance has length Dimensions. Vectors
// from different models or spaces must never meet in the same similarity
// computation, which is what ModelID exists to guard in stored data.
type Provider interface {
	// Embed returns the vector for one text, length Dimensions. The text is
	// passed to the backend verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the fixed vector length, constant for the instance's
	// lifetime.
	Dimensions() int

	// ModelID identifies the backing model ("text-embedding-3-small"),
	// recorded alongside stored vectors and in logs.
	ModelID() string
}

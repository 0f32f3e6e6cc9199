// Package matcher identifies people by comparing face embeddings against
// the reference set in the shared store. Embeddings are 512-dimensional
// vectors compared by cosine similarity; anything at or above the
// threshold counts as a match.
package matcher

// Package embeddings maps text to fixed-dimension dense vectors.
//
// Providers:
//   - hashing: deterministic feature-hashing embedder, no model required
//   - fastembed: local ONNX models through fastembed-go (cgo builds only)
//   - tei: HuggingFace Text Embeddings Inference over HTTP
//
// Any provider can be wrapped with NewCachedProvider to memoize query
// embeddings in an LRU cache.
package embeddings

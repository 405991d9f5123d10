// Package vectorstore persists chunk embeddings and answers tenant-scoped
// nearest-neighbour queries.
//
// Every Record carries its owner in Metadata["tenant"]. Query takes a
// TenantFilter, which can only be built from a validated tenant ID, so an
// unscoped query cannot be expressed. Backends:
//
//   - chromem: embedded, optionally persisted to disk (default)
//   - qdrant: external server over gRPC
//   - sqlite: single-file database with exact cosine search
//
// Distances are cosine distances (1 - cosine similarity); results are
// ordered by ascending distance.
package vectorstore

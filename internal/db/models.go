package db

import (
	"github.com/pgvector/pgvector-go"
)

// Document represents an ingested document. Names are unique across all
// documents ever ingested; ids are assigned at registration and never reused.
type Document struct {
	ID   int
	Name string
}

// Chunk is one stored passage of a document together with its embedding.
type Chunk struct {
	ID         string
	DocumentID int
	Text       string
	PageLabel  string
	Embedding  *pgvector.Vector
}

// Passage is one similarity-search hit. Similarity is cosine similarity
// (1 - cosine distance) of the stored vector against the query vector.
type Passage struct {
	ID           string
	Text         string
	PageLabel    string
	DocumentName string
	Similarity   float64
}

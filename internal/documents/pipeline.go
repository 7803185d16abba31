package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Status is the terminal state of one document's ingestion.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// stage is the internal pipeline state. Transitions are strictly
// sequential: NotStarted -> Segmenting -> Embedding -> Registering ->
// Persisting -> Done, exiting early to Skipped or Failed.
type stage string

const (
	stageNotStarted  stage = "not_started"
	stageSegmenting  stage = "segmenting"
	stageEmbedding   stage = "embedding"
	stageRegistering stage = "registering"
	stagePersisting  stage = "persisting"
)

// Registry is the document bookkeeping the pipeline needs.
type Registry interface {
	Exists(ctx context.Context, name string) (bool, error)
	Register(ctx context.Context, name string) (int, error)
}

// ChunkWriter persists the chunk rows of one document, reporting how
// many rows failed.
type ChunkWriter interface {
	SaveChunks(ctx context.Context, ids, texts, pages []string, vectors [][]float32, documentID int) (int, error)
}

// Embedder turns a list of texts into one vector per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Segmenter splits a document into ordered text units.
type Segmenter interface {
	Segment(path string) ([]Unit, error)
}

// Result is the per-document ingestion record.
type Result struct {
	Name    string
	Status  Status
	Chunks  int
	Errors  int
	Elapsed time.Duration
	Reason  string
}

// Summary aggregates one directory run. It is produced even when every
// document failed.
type Summary struct {
	Attempted   int
	Succeeded   int
	Skipped     int
	Errored     int
	TotalChunks int
	Results     []*Result
}

// Pipeline ingests documents one at a time: segment, embed, register,
// persist. Single-writer by design; no two documents are processed
// concurrently.
type Pipeline struct {
	segmenter    Segmenter
	embedder     Embedder
	registry     Registry
	chunks       ChunkWriter
	idgen        IDGenerator
	processedDir string
	formats      []string
	log          *zap.Logger
}

// NewPipeline wires the ingestion pipeline.
func NewPipeline(seg Segmenter, emb Embedder, reg Registry, chunks ChunkWriter, idgen IDGenerator, processedDir string, formats []string, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		segmenter:    seg,
		embedder:     emb,
		registry:     reg,
		chunks:       chunks,
		idgen:        idgen,
		processedDir: processedDir,
		formats:      formats,
		log:          log,
	}
}

// IngestDocument runs the full pipeline for one file. Skipped and Failed
// documents are left in place so a retry can be attempted manually; only
// Done relocates the file to the processed directory.
func (p *Pipeline) IngestDocument(ctx context.Context, path string) *Result {
	start := time.Now()
	name := filepath.Base(path)
	result := &Result{Name: name}
	st := stageNotStarted

	p.log.Info("processing document", zap.String("name", name))

	// Duplicate check happens before any work is done.
	exists, err := p.registry.Exists(ctx, name)
	if err != nil {
		return p.fail(result, st, start, fmt.Errorf("failed to check registry: %w", err))
	}
	if exists {
		p.log.Warn("document already ingested, skipping", zap.String("name", name))
		result.Status = StatusSkipped
		result.Reason = "already ingested"
		result.Elapsed = time.Since(start)
		return result
	}

	st = stageSegmenting
	units, err := p.segmenter.Segment(path)
	if err != nil {
		return p.fail(result, st, start, err)
	}

	texts := make([]string, len(units))
	pages := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
		pages[i] = u.PageLabel
	}

	// One failed batch aborts the document; there is no partial success
	// at the embedding level.
	st = stageEmbedding
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return p.fail(result, st, start, err)
	}

	st = stageRegistering
	docID, err := p.registry.Register(ctx, name)
	if err != nil {
		return p.fail(result, st, start, err)
	}

	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = p.idgen.Identify(u)
	}

	st = stagePersisting
	rowErrors, err := p.chunks.SaveChunks(ctx, ids, texts, pages, vectors, docID)
	if err != nil {
		return p.fail(result, st, start, err)
	}

	result.Status = StatusDone
	result.Chunks = len(units)
	result.Errors = rowErrors
	result.Elapsed = time.Since(start)

	if err := p.moveToProcessed(path); err != nil {
		// The document is persisted; a failed move only affects the
		// intake directory.
		p.log.Warn("failed to move processed file", zap.String("name", name), zap.Error(err))
	}

	p.log.Info("processed document",
		zap.String("name", name),
		zap.Int("chunks", result.Chunks),
		zap.Int("row_errors", result.Errors),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result
}

// IngestDirectory ingests every supported file in dir, one document at a
// time, and always returns a summary.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (*Summary, error) {
	if err := os.MkdirAll(p.processedDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create processed directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	summary := &Summary{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !p.supported(entry.Name()) {
			continue
		}
		summary.Attempted++

		result := p.IngestDocument(ctx, filepath.Join(dir, entry.Name()))
		summary.Results = append(summary.Results, result)

		switch result.Status {
		case StatusDone:
			summary.Succeeded++
			summary.TotalChunks += result.Chunks
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Errored++
		}
	}

	p.log.Info("directory ingestion complete",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errored", summary.Errored),
		zap.Int("total_chunks", summary.TotalChunks),
	)
	return summary, nil
}

func (p *Pipeline) fail(result *Result, st stage, start time.Time, err error) *Result {
	p.log.Error("document ingestion failed",
		zap.String("name", result.Name),
		zap.String("stage", string(st)),
		zap.Error(err),
	)
	result.Status = StatusFailed
	result.Reason = err.Error()
	result.Elapsed = time.Since(start)
	return result
}

func (p *Pipeline) supported(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, f := range p.formats {
		if ext == f {
			return true
		}
	}
	return false
}

func (p *Pipeline) moveToProcessed(path string) error {
	if p.processedDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.processedDir, 0755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(p.processedDir, filepath.Base(path)))
}

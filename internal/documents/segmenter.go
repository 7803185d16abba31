package documents

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperchat/cli/config"
)

// ErrNoContent means a document yielded zero usable text units after
// normalization and filtering. Distinct from a parse failure and from an
// empty success.
var ErrNoContent = errors.New("document has no usable text content")

// Unit is one segmented text unit: a whole page in page mode, one
// overlapping window in chunk mode. NativeID is assigned at segmentation
// time and only used by the native id strategy.
type Unit struct {
	Text      string
	PageLabel string
	NativeID  string
}

// FileSegmenter loads a document, cleans its text and splits it into
// either whole pages or overlapping windows.
type FileSegmenter struct {
	mode         string
	chunkSize    int
	chunkOverlap int
	minPageWords int
	log          *zap.Logger
}

// NewFileSegmenter creates a segmenter. Mode, window size and overlap are
// validated by config.Validate before this is reached.
func NewFileSegmenter(cfg *config.Config, log *zap.Logger) *FileSegmenter {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSegmenter{
		mode:         cfg.Processing.Mode,
		chunkSize:    cfg.Processing.ChunkSize,
		chunkOverlap: cfg.Processing.ChunkOverlap,
		minPageWords: cfg.Processing.MinPageWords,
		log:          log,
	}
}

// Segment produces the ordered text units for one document.
func (s *FileSegmenter) Segment(path string) ([]Unit, error) {
	pages, err := s.loadPages(path)
	if err != nil {
		return nil, err
	}

	pages = s.cleanPages(pages)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoContent)
	}

	var units []Unit
	if s.mode == config.ModeChunks {
		units = s.chunkPages(pages)
	} else {
		units = pages
	}

	s.log.Info("segmented document",
		zap.String("file", filepath.Base(path)),
		zap.String("mode", s.mode),
		zap.Int("units", len(units)),
	)
	return units, nil
}

// loadPages extracts raw page text. PDFs and EPUBs go through go-fitz;
// plain text files become a single unit labelled page 1.
func (s *FileSegmenter) loadPages(path string) ([]Unit, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".epub":
		doc, err := fitz.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
		}
		defer doc.Close()

		var pages []Unit
		for i := 0; i < doc.NumPage(); i++ {
			text, err := doc.Text(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read page %d of %s: %w", i+1, filepath.Base(path), err)
			}
			pages = append(pages, Unit{
				Text:      text,
				PageLabel: strconv.Itoa(i + 1),
				NativeID:  uuid.New().String(),
			})
		}
		return pages, nil
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}
		return []Unit{{Text: string(data), PageLabel: "1", NativeID: uuid.New().String()}}, nil
	}
	return nil, fmt.Errorf("unsupported file type %s", filepath.Ext(path))
}

// cleanPages normalizes page text, drops pages that normalize to empty
// and then drops pages below the minimum word count. The empty check
// runs first so blank pages never reach the short-page filter.
func (s *FileSegmenter) cleanPages(pages []Unit) []Unit {
	kept := make([]Unit, 0, len(pages))
	short := 0
	for _, page := range pages {
		text := NormalizeText(page.Text)
		if text == "" {
			continue
		}
		if len(strings.Fields(text)) < s.minPageWords {
			short++
			continue
		}
		page.Text = text
		kept = append(kept, page)
	}
	if short > 0 {
		s.log.Debug("dropped short pages", zap.Int("count", short))
	}
	return kept
}

// chunkPages splits each page into overlapping fixed-size word windows,
// preserving the source page label on every window. For a page of L
// words the window count is ceil((L-O)/(C-O)); a page with L <= C yields
// exactly one window.
func (s *FileSegmenter) chunkPages(pages []Unit) []Unit {
	var units []Unit
	step := s.chunkSize - s.chunkOverlap
	for _, page := range pages {
		words := strings.Fields(page.Text)
		for start := 0; ; start += step {
			end := start + s.chunkSize
			if end > len(words) {
				end = len(words)
			}
			units = append(units, Unit{
				Text:      strings.Join(words[start:end], " "),
				PageLabel: page.PageLabel,
				NativeID:  uuid.New().String(),
			})
			if end == len(words) {
				break
			}
		}
	}
	return units
}

var multiSpace = regexp.MustCompile(`\s+`)

// NormalizeText collapses tabs, newlines and hyphenation breaks into
// single spaces.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\t", " ")
	text = strings.ReplaceAll(text, " -\n", "")
	text = strings.ReplaceAll(text, "-\n", "")
	text = strings.ReplaceAll(text, "\n", " ")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

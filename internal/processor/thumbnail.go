package processor

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/platform/storage"
)

// ThumbnailHandler produces a raster thumbnail for PDF documents by
// extracting the first page's image content with pdfcpu and re-encoding
// the largest extracted image as PNG at the conventional artifact path.
// Non-PDF documents are a terminal validation failure.
type ThumbnailHandler struct {
	files storage.FileStore
}

// NewThumbnailHandler creates the PDF thumbnail handler.
func NewThumbnailHandler(files storage.FileStore) *ThumbnailHandler {
	if files == nil {
		panic("file store cannot be nil")
	}
	return &ThumbnailHandler{files: files}
}

var _ Handler = (*ThumbnailHandler)(nil)

// Type implements Handler.
func (h *ThumbnailHandler) Type() domain.ProcessorType {
	return domain.ProcessorTypeThumbnail
}

// Handle implements Handler.
func (h *ThumbnailHandler) Handle(ctx context.Context, req Request) Result {
	doc := req.Document

	if !doc.IsPDF() {
		return ValidationFailure("document %s is not a PDF", doc.ID)
	}

	exists, err := h.files.FileExists(doc.FilePath)
	if err != nil {
		return TransientFailure(err)
	}
	if !exists {
		return ValidationFailure("source artifact %q is missing", doc.FilePath)
	}

	data, err := h.files.ReadFile(doc.FilePath)
	if err != nil {
		return TransientFailure(err)
	}

	// pdfcpu's extraction API is file based; stage the PDF in a scratch
	// directory that is removed when the handler returns.
	workDir, err := os.MkdirTemp("", "docpipe-thumbnail-*")
	if err != nil {
		return TransientFailure(err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	inFile := filepath.Join(workDir, "source.pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return TransientFailure(err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCountFile(inFile)
	if err != nil {
		return ValidationFailure("cannot read PDF: %v", err)
	}
	if pageCount == 0 {
		return ValidationFailure("PDF has no pages")
	}

	outDir := filepath.Join(workDir, "images")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return TransientFailure(err)
	}

	if err := api.ExtractImagesFile(inFile, outDir, []string{"1"}, cfg); err != nil {
		return ValidationFailure("cannot extract first-page image: %v", err)
	}

	img, err := largestImage(outDir)
	if err != nil {
		return ValidationFailure("first page has no renderable image: %v", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return TransientFailure(err)
	}

	path := storage.ThumbnailPath(doc.ProjectID, doc.ID)
	if err := h.files.WriteFile(path, buf.Bytes()); err != nil {
		return TransientFailure(err)
	}

	return Success(path, map[string]any{
		"page_count":      pageCount,
		"thumbnail_bytes": buf.Len(),
	})
}

// largestImage decodes every extracted image in dir and returns the one
// with the largest pixel area, a reasonable proxy for the page's primary
// visual.
func largestImage(dir string) (image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var (
		best     image.Image
		bestArea int
	)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		img, _, err := image.Decode(f)
		_ = f.Close()
		if err != nil {
			continue
		}

		bounds := img.Bounds()
		area := bounds.Dx() * bounds.Dy()
		if area > bestArea {
			best = img
			bestArea = area
		}
	}

	if best == nil {
		return nil, os.ErrNotExist
	}

	return best, nil
}

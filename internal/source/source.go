package source

import (
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/apngtool/internal/system"
)

// Source yields the pages that become animation frames, in order.
type Source interface {
	PageCount() int
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// Open picks a source by input type: PDF documents, text files of QR
// payloads, or an image file or directory.
func Open(path string, qrSize int) (Source, error) {
	switch {
	case system.HasExtension(path, ".pdf"):
		return NewFitzPDFSource(path)
	case system.HasExtension(path, ".txt"):
		return NewQRSource(path, qrSize)
	default:
		return NewImageSource(path)
	}
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) GetPageDimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage opens its own document so pages can render concurrently.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	return workerDoc.ImageDPI(index, float64(dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}

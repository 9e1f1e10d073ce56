package source

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/skip2/go-qrcode"
)

// QRSource renders every non-empty line of a text file as a QR code.
// Lines starting with # are skipped.
type QRSource struct {
	lines []string
	size  int
}

func NewQRSource(path string, size int) (*QRSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewQRTextSource(lines, size)
}

// NewQRTextSource renders the given payloads at size x size pixels.
func NewQRTextSource(lines []string, size int) (*QRSource, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid QR size %d", size)
	}
	if len(lines) == 0 {
		return nil, errors.New("no QR payloads")
	}
	return &QRSource{lines: lines, size: size}, nil
}

func (s *QRSource) PageCount() int {
	return len(s.lines)
}

func (s *QRSource) GetPageDimensions(index int) (float64, float64, error) {
	return float64(s.size), float64(s.size), nil
}

func (s *QRSource) RenderPage(index int, dpi int) (image.Image, error) {
	q, err := qrcode.New(s.lines[index], qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr frame %d: %w", index, err)
	}
	return q.Image(s.size), nil
}

func (s *QRSource) Close() error {
	return nil
}

package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
)

// reencodePNG decodes any registered image format (png, jpeg, gif, bmp, tiff, webp)
// and re-encodes it as PNG.
func reencodePNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}

// uploadableImage returns the image bytes and MIME type in a form hosted vision
// models accept, re-encoding TIFF, BMP and other formats as PNG.
func uploadableImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	mime := http.DetectContentType(data)
	switch mime {
	case "image/png", "image/jpeg", "image/webp":
		return data, mime, nil
	}
	out, err := reencodePNG(data)
	if err != nil {
		return nil, "", err
	}
	return out, "image/png", nil
}

// sniffFormat maps a file's content to a source format when its extension says
// nothing. Unknown content maps to "".
func sniffFormat(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := f.Read(head)
	head = head[:n]

	mime := http.DetectContentType(head)
	switch {
	case mime == "application/pdf":
		return constants.PDF
	case strings.HasPrefix(mime, "image/"):
		return constants.IMAGE
	case strings.HasPrefix(mime, "text/html"):
		return constants.HTML
	case strings.HasPrefix(mime, "text/plain"):
		return constants.TXT
	}
	// TIFF is not in the sniffing table
	if bytes.HasPrefix(head, []byte("II*\x00")) || bytes.HasPrefix(head, []byte("MM\x00*")) {
		return constants.IMAGE
	}
	return ""
}

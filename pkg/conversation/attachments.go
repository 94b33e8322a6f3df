package conversation

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var DocMimeTypeMapping = map[string]DocumentFormat{
	"application/msword": DocumentFormatDOC,
	"application/pdf":    DocumentFormatPDF,
	"application/vnd.ms-excel": DocumentFormatXLS,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       DocumentFormatXLSX,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": DocumentFormatDOCX,
	"text/csv":      DocumentFormatCSV,
	"text/html":     DocumentFormatHTML,
	"text/markdown": DocumentFormatMD,
	"text/plain":    DocumentFormatTXT,
}

var ImageMimeTypeMapping = map[string]ImageFormat{
	"image/gif":  ImageFormatGIF,
	"image/jpeg": ImageFormatJPEG,
	"image/png":  ImageFormatPNG,
	"image/webp": ImageFormatWEBP,
}

// extension fallbacks for platforms with a sparse mime database
var extensionMimeTypes = map[string]string{
	".csv":  "text/csv",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".gif":  "image/gif",
	".html": "text/html",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".txt":  "text/plain",
	".webp": "image/webp",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var ErrUnsupportedAttachment = errors.New("unsupported attachment type")

const maxAttachmentSize = 20 * 1024 * 1024

func mimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extensionMimeTypes[ext]; ok {
		return mt
	}
	mt := mime.TypeByExtension(ext)
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

// BlockFromFile reads an attachment and turns it into an image or document
// block. Documents are only accepted when supportsDocs is set.
func BlockFromFile(path string, supportsDocs bool) (ContentBlock, error) {
	mt := mimeTypeForPath(path)
	imgFormat, isImage := ImageMimeTypeMapping[mt]
	docFormat, isDoc := DocMimeTypeMapping[mt]
	if !isImage && !(isDoc && supportsDocs) {
		return ContentBlock{}, errors.Wrapf(ErrUnsupportedAttachment, "%s (%s)", filepath.Base(path), mt)
	}

	info, err := os.Stat(path)
	if err != nil {
		return ContentBlock{}, errors.Wrapf(err, "could not stat %s", path)
	}
	if info.Size() > maxAttachmentSize {
		return ContentBlock{}, errors.Errorf("%s exceeds the 20MB attachment limit", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ContentBlock{}, errors.Wrapf(err, "could not read %s", path)
	}

	name := filepath.Base(path)
	if isImage {
		return NewImageBlock(imgFormat, b, name), nil
	}
	return NewDocumentBlock(docFormat, b, strings.TrimSuffix(name, filepath.Ext(name))), nil
}

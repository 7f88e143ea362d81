package sampler

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeXLS  = "application/vnd.ms-excel"
)

func AllFormats() []Format {
	return []Format{FormatCSV, FormatXLSX, FormatXLS}
}

// DetectFormat resolves the tabular format from the file extension, falling back to
// the declared content type only when the name carries no extension at all.
func DetectFormat(filename, contentType string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case "":
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}

	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, contentType)
	}
	switch mediaType {
	case ContentTypeCSV, "application/csv":
		return FormatCSV, nil
	case ContentTypeXLSX:
		return FormatXLSX, nil
	case ContentTypeXLS:
		return FormatXLS, nil
	default:
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, mediaType)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return ContentTypeCSV
	case FormatXLSX:
		return ContentTypeXLSX
	case FormatXLS:
		return ContentTypeXLS
	default:
		return "application/octet-stream"
	}
}

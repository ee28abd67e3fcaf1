package export

import (
	"encoding/json"
	"io"
)

// JSONExporter exports debates to JSON format.
type JSONExporter struct{}

// Export writes the debate as JSON.
func (e *JSONExporter) Export(doc *Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return "json"
}

// ContentType returns the MIME type for JSON.
func (e *JSONExporter) ContentType() string {
	return "application/json"
}

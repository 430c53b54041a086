package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// YAMLExporter exports sessions in YAML format.
type YAMLExporter struct{}

// Export exports a session to YAML format.
func (e *YAMLExporter) Export(session *space.Session, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(session)
}

// Extension returns the file extension for this format.
func (e *YAMLExporter) Extension() string {
	return "yaml"
}

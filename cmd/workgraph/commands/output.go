package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMermaid = "mermaid"
)

var errUnsupportedFormat = errors.New("unsupported output format")

func writeFormatted(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", errUnsupportedFormat, format)
}

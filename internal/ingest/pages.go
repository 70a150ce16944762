package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/legalwise/internal/chunk"
	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// PageFile is extracted document text as produced by an OCR or PDF
// extraction step. On disk it is either this object or a bare page list.
type PageFile struct {
	Document string       `json:"document,omitempty" yaml:"document,omitempty"`
	Pages    []chunk.Page `json:"pages" yaml:"pages"`
}

// LoadPages reads a page file. Files ending in .yaml or .yml are YAML;
// anything else is JSON. When the file names no document, the document is
// the file's base name without its extension.
func LoadPages(path string) (*PageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lwerrors.New(lwerrors.ErrCodeFileNotFound, "page file not found", err).
				WithDetail("path", path)
		}
		return nil, lwerrors.Wrap(lwerrors.ErrCodeInvalidInput, err)
	}

	pf, err := ParsePages(data, isYAML(path))
	if err != nil {
		return nil, err
	}
	if pf.Document == "" {
		base := filepath.Base(path)
		pf.Document = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return pf, nil
}

// ParsePages decodes page data in either layout and validates page numbers.
func ParsePages(data []byte, asYAML bool) (*PageFile, error) {
	pf, err := decodePages(data, asYAML)
	if err != nil {
		return nil, lwerrors.ValidationError("cannot parse page file", err).
			WithSuggestion(`Provide [{"page": 1, "text": "...", "method": "native"}]`)
	}

	seen := make(map[int]bool, len(pf.Pages))
	for _, p := range pf.Pages {
		if p.Number < 1 {
			return nil, lwerrors.ValidationError(fmt.Sprintf("page number must be >= 1, got %d", p.Number), nil)
		}
		if seen[p.Number] {
			return nil, lwerrors.ValidationError(fmt.Sprintf("page %d appears twice", p.Number), nil)
		}
		seen[p.Number] = true
	}
	return pf, nil
}

func decodePages(data []byte, asYAML bool) (*PageFile, error) {
	var pf PageFile
	if asYAML {
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, err
		}
		if len(node.Content) == 0 {
			return &pf, nil
		}
		if node.Content[0].Kind == yaml.SequenceNode {
			return &pf, node.Decode(&pf.Pages)
		}
		return &pf, node.Decode(&pf)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return &pf, json.Unmarshal(trimmed, &pf.Pages)
	}
	return &pf, json.Unmarshal(trimmed, &pf)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

const (
	MetadataSuffix = "_metadata.json"
	EntrySuffix    = "_libraryentry.md"
)

// SourceFiles names the files a prepared entry is assembled from. All of them
// share the stem of the metadata file.
type SourceFiles struct {
	Metadata     string
	ShortSummary string
	Summary      string
	FullText     string
}

// SourcesFor derives the section file names from "<stem>_metadata.json":
// <stem>_shortsummary.md, <stem>_summary.md and <stem>.md.
func SourcesFor(metadataPath string) SourceFiles {
	stem := strings.TrimSuffix(metadataPath, MetadataSuffix)
	return SourceFiles{
		Metadata:     metadataPath,
		ShortSummary: stem + "_shortsummary.md",
		Summary:      stem + "_summary.md",
		FullText:     stem + ".md",
	}
}

// EntryPath is where the assembled document for metadataPath is written by default.
func EntryPath(metadataPath string) string {
	return strings.TrimSuffix(metadataPath, MetadataSuffix) + EntrySuffix
}

// AssembleFiles reads src and assembles it with AssembleEntry.
func AssembleFiles(src SourceFiles) ([]byte, error) {
	read := func(path string) (string, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(raw), nil
	}
	meta, err := os.ReadFile(src.Metadata)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Metadata, err)
	}
	short, err := read(src.ShortSummary)
	if err != nil {
		return nil, err
	}
	summary, err := read(src.Summary)
	if err != nil {
		return nil, err
	}
	full, err := read(src.FullText)
	if err != nil {
		return nil, err
	}
	return AssembleEntry(meta, short, summary, full)
}

// AssembleEntry builds a document ParseEntry accepts from a JSON metadata
// object and the three section texts. Delimiter lines inside a section are
// dropped so the result always has exactly four.
func AssembleEntry(metadataJSON []byte, short, summary, full string) ([]byte, error) {
	frontMatter, err := metadataYAML(metadataJSON)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(delimiterLine + "\n")
	buf.WriteString(frontMatter + "\n")
	for _, section := range []string{short, summary, full} {
		buf.WriteString(delimiterLine + "\n")
		buf.WriteString(dropDelimiters(section) + "\n")
	}
	out := buf.Bytes()
	if _, err := ParseEntry(out); err != nil {
		return nil, err
	}
	return out, nil
}

func metadataYAML(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var meta map[string]interface{}
	if err := dec.Decode(&meta); err != nil {
		return "", fmt.Errorf("%w: metadata is not a json object: %v", appErr.ErrMalformedDocument, err)
	}
	out, err := yaml.Marshal(plainNumbers(meta))
	if err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// plainNumbers swaps json.Number for int64 or float64 so yaml emits numbers
// rather than quoted strings.
func plainNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		for k, item := range val {
			val[k] = plainNumbers(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = plainNumbers(item)
		}
		return val
	}
	return v
}

func dropDelimiters(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != delimiterLine {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

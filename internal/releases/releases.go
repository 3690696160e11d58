// Package releases reads the downloads index (index.json, meta.json) and
// generates the Markdown for the downloads page.
package releases

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrVersionNotFound = errors.New("version not found")
	ErrNoReleases      = errors.New("no releases found")
	ErrInvalidIndex    = errors.New("invalid release index")
	ErrLoad            = errors.New("failed to load JSON")
)

// File is one downloadable asset of a release.
type File struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

// NamedFile pairs a file with its key in the release's files object.
type NamedFile struct {
	Key string
	File
}

// Files keeps the order in which assets appear in index.json.
type Files []NamedFile

// UnmarshalJSON decodes a JSON object into Files, preserving key order.
func (f *Files) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("files: expected object, got %v", tok)
	}

	var out Files
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("files: expected key, got %v", tok)
		}
		var file File
		if err := dec.Decode(&file); err != nil {
			return fmt.Errorf("files[%s]: %w", key, err)
		}
		out = append(out, NamedFile{Key: key, File: file})
	}
	*f = out
	return nil
}

// Release is one entry of index.json.
type Release struct {
	Title         string   `json:"title"`
	Commit        string   `json:"commit"`
	Type          string   `json:"type"`
	GHRelease     string   `json:"gh_release"`
	GHChanges     string   `json:"gh_changes"`
	VSCodeRelease string   `json:"vscode_release"`
	VSRelease     string   `json:"vs_release"`
	Features      []string `json:"features"`
	Files         Files    `json:"files"`
	Src           string   `json:"src,omitempty"`
	Zip           string   `json:"zip,omitempty"`
}

// Index maps version to release.
type Index map[string]Release

// MetaEntry labels an asset key.
type MetaEntry struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Meta maps asset key to its label.
type Meta map[string]MetaEntry

package storyworld

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Parse decodes a storyworld document
func Parse(data []byte) (*Storyworld, error) {
	var w Storyworld
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse storyworld: %w", err)
	}
	return &w, nil
}

// Load reads and parses the document at path
func Load(path string) (*Storyworld, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storyworld %s: %w", path, err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Encode renders the document as indented JSON
func Encode(w *Storyworld) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("failed to encode storyworld: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the document to path through a temporary file in the same
// directory, so a failed write leaves the previous file intact.
func Save(path string, w *Storyworld) error {
	data, err := Encode(w)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Clone returns a deep copy of w
func (w *Storyworld) Clone() (*Storyworld, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to clone storyworld: %w", err)
	}
	return Parse(data)
}

// Hash is a content hash of the encoded document, stable across loads of
// the same content.
func Hash(w *Storyworld) (string, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to hash storyworld: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Package frontmatter encodes and decodes Markdown documents that carry a
// leading YAML metadata block delimited by "---" lines. The vault uses this
// layout for every task and approval file.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

var (
	// ErrEmptyDocument is returned when the input has no content at all.
	ErrEmptyDocument = errors.New("frontmatter: empty document")

	// ErrNoFrontmatter is returned when the document does not start with a
	// YAML block. Such files stay in place for human inspection.
	ErrNoFrontmatter = errors.New("frontmatter: missing metadata block")

	// ErrUnterminated is returned when the opening delimiter has no closing
	// counterpart, typically a partially written file.
	ErrUnterminated = errors.New("frontmatter: unterminated metadata block")
)

// Decode splits a document into its YAML metadata (unmarshaled into meta)
// and the Markdown body that follows the closing delimiter.
func Decode(data []byte, meta interface{}) (body string, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyDocument
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return "", ErrNoFrontmatter
	}
	rest := text[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end == -1 {
		return "", ErrUnterminated
	}
	block := rest[:end+1]
	body = rest[end+1+len(delimiter):]
	// drop the delimiter line terminator and the blank separator Encode emits
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	if err = yaml.Unmarshal([]byte(block), meta); err != nil {
		return "", fmt.Errorf("frontmatter: invalid yaml: %w", err)
	}
	return body, nil
}

// Encode renders meta as a YAML frontmatter block followed by body.
func Encode(meta interface{}, body string) ([]byte, error) {
	block, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(block)
	buf.WriteString(delimiter + "\n")
	if body != "" {
		if !strings.HasPrefix(body, "\n") {
			buf.WriteString("\n")
		}
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

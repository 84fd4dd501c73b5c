package doc

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/fieldflow/internal/ir"
)

// maxLineBytes bounds a single JSON Lines record.
const maxLineBytes = 16 << 20

// ReadJSONLines decodes one JSON object per non-blank line.
func ReadJSONLines(r io.Reader) ([]ir.Object, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var docs []ir.Object
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := ir.UnmarshalValue([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("line %d: expected JSON object, got %s", line, ir.TypeName(v))
		}
		docs = append(docs, obj)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	return docs, nil
}

// WriteJSONLines writes each document as one canonical JSON line.
func WriteJSONLines(w io.Writer, docs []ir.Value) error {
	for i, d := range docs {
		data, err := ir.MarshalCanonical(d)
		if err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return err
		}
	}
	return nil
}

package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/itchyny/gojq"
)

// JSON writes v to w as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Render writes v to stdout, optionally filtered through a jq expression.
// Listing commands use this so their output stays pipeline-friendly.
func Render(v any, jqExpr string) error {
	if jqExpr == "" {
		return JSON(os.Stdout, v)
	}
	return Filtered(os.Stdout, v, jqExpr)
}

// Filtered runs a jq expression over v and writes each produced value to w
// as its own JSON document, matching jq's stream behavior.
func Filtered(w io.Writer, v any, jqExpr string) error {
	query, err := gojq.Parse(jqExpr)
	if err != nil {
		return fmt.Errorf("parsing jq expression %q: %w", jqExpr, err)
	}

	// gojq operates on plain decoded values, so round-trip through JSON.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}

	iter := query.Run(decoded)
	for {
		item, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := item.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return nil
			}
			return fmt.Errorf("evaluating jq expression: %w", err)
		}
		if err := JSON(w, item); err != nil {
			return err
		}
	}
}

package schema

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports required columns that are absent or hold values
// that cannot be coerced to a finite float. Batch scoring fails
// wholesale on the first SchemaError; the column lists tell the caller
// exactly what to fix.
type SchemaError struct {
	MissingColumns []string
	InvalidColumns []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.MissingColumns) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns: %s", strings.Join(e.MissingColumns, ", ")))
	}
	if len(e.InvalidColumns) > 0 {
		parts = append(parts, fmt.Sprintf("invalid values in columns: %s", strings.Join(e.InvalidColumns, ", ")))
	}
	if len(parts) == 0 {
		return "schema error"
	}
	return "schema error: " + strings.Join(parts, "; ")
}

// ErrNotFitted is returned when a transform or classifier is used
// before Fit. This is a programming error, never user input.
var ErrNotFitted = errors.New("not fitted: Fit must be called first")

package patch

import "fmt"

// MarkerParseError reports a marker line whose attributes cannot be read.
type MarkerParseError struct {
	Line     int
	Found    string
	Expected string
}

func (e *MarkerParseError) Error() string {
	return fmt.Sprintf("line %d: malformed marker: expected %s, found %q; fix the marker line and re-run", e.Line, e.Expected, e.Found)
}

// BlockParseError reports unmatched or duplicate markers, or a block whose
// enclosing group cannot be found.
type BlockParseError struct {
	MethodID string
	Line     int
	Expected string
	Found    string
}

func (e *BlockParseError) Error() string {
	id := ""
	if e.MethodID != "" {
		id = fmt.Sprintf(" (method_id %q)", e.MethodID)
	}
	return fmt.Sprintf("line %d%s: expected %s, found %s; repair the block markers before re-running", e.Line, id, e.Expected, e.Found)
}

// ConflictError reports an insert into a target that already holds the
// block under the error policy.
type ConflictError struct {
	MethodID string
	Line     int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("method_id %q: expected no existing block, found one at line %d; re-run with conflict policy overwrite to replace it or skip to keep it", e.MethodID, e.Line)
}

// ApplyError reports a block that cannot be placed in the target.
type ApplyError struct {
	MethodID string
	Expected string
	Found    string
	Action   string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("method_id %q: expected %s, found %s; %s", e.MethodID, e.Expected, e.Found, e.Action)
}

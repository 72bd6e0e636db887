package probe

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/go-openapi/jsonpointer"
)

// ResolveJSONPointer parses body as JSON and resolves an RFC-6901 pointer
// against it, returning the resolved value's string form for comparison.
func ResolveJSONPointer(body []byte, pointer string) (string, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", errors.Wrap(err, "response body is not valid JSON")
	}

	ptr, err := jsonpointer.New(pointer)
	if err != nil {
		return "", errors.Wrapf(err, "malformed JSON pointer %q", pointer)
	}

	val, _, err := ptr.Get(doc)
	if err != nil {
		return "", errors.Wrapf(err, "pointer %q does not resolve", pointer)
	}

	return stringify(val), nil
}

// stringify renders a resolved JSON value the same way regardless of its
// underlying Go type, so a pointer to a string, number, or bool can all be
// compared against a textual "expected" argument.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

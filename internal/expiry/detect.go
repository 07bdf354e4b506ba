package expiry

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Record is one parsed JSON value from an input file. Payloads are
// opaque; the filter only looks at accreditations[*].valid_until.
type Record any

// ErrUnknownFraming means none of the candidate framings matched.
var ErrUnknownFraming = errors.New("unable to parse input as NDJSON, a JSON array, or concatenated JSON objects")

// framing attempts one serialization layout; ok=false rejects it and
// hands the input to the next candidate.
type framing func(text string) (recs []Record, ok bool)

// DetectRecords tries the candidate framings in fixed priority order
// and returns the first structurally valid parse. NDJSON goes first:
// it is the most common ingestion format and the cheapest to validate,
// and the order must stay fixed because some inputs satisfy more than
// one framing (a one-line JSON array is also valid NDJSON and must
// keep parsing as NDJSON).
func DetectRecords(text string) ([]Record, error) {
	for _, f := range []framing{parseNDJSON, parseJSONArray, parseConcatenated} {
		if recs, ok := f(text); ok {
			return recs, nil
		}
	}
	return nil, ErrUnknownFraming
}

// parseNDJSON accepts input where every non-blank line is one complete
// JSON value. Blank input is valid and yields no records.
func parseNDJSON(text string) ([]Record, bool) {
	recs := []Record{}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, false
		}
		recs = append(recs, rec)
	}
	return recs, true
}

// parseJSONArray accepts input that is exactly one JSON array; a lone
// object or invalid JSON rejects the framing.
func parseJSONArray(text string) ([]Record, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	recs := make([]Record, 0, len(arr))
	for _, el := range arr {
		recs = append(recs, el)
	}
	return recs, true
}

// parseConcatenated accepts JSON values written back to back with only
// whitespace between them, the shape some exporters produce when they
// drop the enclosing array. An unparseable remainder rejects the
// framing.
func parseConcatenated(text string) ([]Record, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	recs := []Record{}
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return recs, true
			}
			return nil, false
		}
		recs = append(recs, rec)
	}
}

package expiry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectRecordsNDJSON(t *testing.T) {
	text := `{"id":1}
{"id":2}

{"id":3}
`
	recs, err := DetectRecords(text)
	require.NoError(t, err)
	require.Len(t, recs, 3, "one record per non-blank line")

	for i, want := range []float64{1, 2, 3} {
		m, ok := recs[i].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, want, m["id"], "order preserved")
	}
}

func TestDetectRecordsEmptyInput(t *testing.T) {
	recs, err := DetectRecords("")
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = DetectRecords("\n  \n\t\n")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDetectRecordsJSONArray(t *testing.T) {
	text := `[
  {"id": 1},
  {"id": 2}
]`
	recs, err := DetectRecords(text)
	require.NoError(t, err)
	require.Len(t, recs, 2, "exactly the array's elements")
	m, ok := recs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), m["id"])
}

func TestDetectRecordsSingleObject(t *testing.T) {
	// A lone object is one line of valid NDJSON.
	recs, err := DetectRecords(`{"id":1}`)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDetectRecordsConcatenatedObjects(t *testing.T) {
	text := `{"id":1} {"id":2}
	 {"id":3}`
	recs, err := DetectRecords(text)
	require.NoError(t, err)
	require.Len(t, recs, 3, "full recovered sequence in order")
	m, ok := recs[2].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), m["id"])
}

func TestDetectRecordsConcatenatedWithBadRemainder(t *testing.T) {
	_, err := DetectRecords(`{"id":1} {"id":2} {broken`)
	assert.ErrorIs(t, err, ErrUnknownFraming)
}

func TestDetectRecordsUnknownFraming(t *testing.T) {
	_, err := DetectRecords(`{not json`)
	assert.ErrorIs(t, err, ErrUnknownFraming)
}

func TestDetectRecordsPriorityOrder(t *testing.T) {
	// A one-line JSON array is also valid NDJSON; NDJSON is tried
	// first and wins, yielding one record that is the array itself.
	recs, err := DetectRecords(`[{"id":1},{"id":2}]`)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	_, isArr := recs[0].([]any)
	assert.True(t, isArr, "the single record is the whole array")
}

func TestDetectRecordsMixedLinesRejectNDJSON(t *testing.T) {
	// Second line is garbage: NDJSON rejected, whole text is not one
	// JSON value, concatenation hits the garbage too.
	_, err := DetectRecords("{\"id\":1}\nnot-json\n")
	assert.ErrorIs(t, err, ErrUnknownFraming)
}

func TestDetectRecordsScalarsAndArraysPerLine(t *testing.T) {
	recs, err := DetectRecords("42\n\"s\"\n[1,2]\n")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, float64(42), recs[0])
	assert.Equal(t, "s", recs[1])
}

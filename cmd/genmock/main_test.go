package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/adapter/gtd"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

var testOpts = options{rows: 500, seed: 42, startYear: 2015, endYear: 2016}

func TestGenerate_Deterministic(t *testing.T) {
	a := generate(testOpts)
	b := generate(testOpts)
	require.Len(t, a, 500)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different output (-first +second):\n%s", diff)
	}

	other := testOpts
	other.seed = 43
	assert.NotEqual(t, a, generate(other))
}

func TestGenerate_Shape(t *testing.T) {
	ids := map[string]bool{}
	for _, r := range generate(testOpts) {
		assert.False(t, ids[r.EventID], "duplicate id %s", r.EventID)
		ids[r.EventID] = true
		assert.Len(t, r.EventID, 12)
		assert.Contains(t, []string{"2015", "2016"}, r.Year)
	}
}

func TestEncode_RoundTripsThroughSource(t *testing.T) {
	records := generate(testOpts)

	for _, enc := range []string{gtd.EncodingLatin1, gtd.EncodingUTF8} {
		t.Run(enc, func(t *testing.T) {
			data, err := encode(records, enc)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "gtd.csv")
			require.NoError(t, os.WriteFile(path, data, 0o600))

			got, err := gtd.NewSource(path, enc).Records(context.Background())
			require.NoError(t, err)
			require.Len(t, got, len(records))

			// Line numbers are filled in by the reader only.
			if diff := cmp.Diff(records, got, cmpopts.IgnoreFields(domain.RawRecord{}, "Line")); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncode_UnknownEncoding(t *testing.T) {
	_, err := encode(nil, "ebcdic")
	require.Error(t, err)
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/adapter/gtd"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
)

const sampleCSV = `eventid,iyear,imonth,iday,country_txt,region_txt,city,latitude,longitude,attacktype1_txt,nkill,nwound
201501010001,2015,1,1,Iraq,Middle East & North Africa,Baghdad,33.31,44.36,Bombing/Explosion,5,12
201501020001,2015,1,2,Iraq,Middle East & North Africa,Baghdad,33.32,44.38,Armed Assault,,3
201502000001,2015,2,0,Afghanistan,South Asia,Kabul,34.53,69.17,Bombing/Explosion,2,0
201503010001,2015,3,1,Afghanistan,South Asia,Kabul,,,Armed Assault,1,0
201603010001,2016,3,1,Iraq,Middle East & North Africa,Mosul,36.34,43.13,Assassination,0,1
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gtd.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))
	return path
}

func baseOptions(path string) options {
	return options{
		path:               path,
		encoding:           gtd.EncodingUTF8,
		maxSkipShare:       0.5,
		maxUnknownSeverity: 0.5,
		at:                 "latest",
		horizon:            30,
	}
}

func TestRun_Passes(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), baseOptions(writeSample(t)), &out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "Rows: 5 read, 4 accepted")
	assert.Contains(t, out.String(), "missing_coordinates")
	assert.Contains(t, out.String(), "All validations passed.")
}

func TestRun_FailsOnSkipShare(t *testing.T) {
	o := baseOptions(writeSample(t))
	o.maxSkipShare = 0.1

	var out bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), o, &out))
	assert.Contains(t, out.String(), "20.0% of rows excluded")
}

func TestRun_MissingFile(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), baseOptions(filepath.Join(t.TempDir(), "absent.csv")), &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "FATAL")
}

func TestRun_Hotspots(t *testing.T) {
	o := baseOptions(writeSample(t))
	o.top = 3

	var out bytes.Buffer
	code := run(context.Background(), o, &out)
	require.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "Top 3 hotspots")
	assert.Contains(t, out.String(), " 1. cell")
}

func TestValidateSeverity(t *testing.T) {
	incs := []domain.Incident{
		{SeverityKnown: true, Severity: 3},
		{SeverityKnown: true},
		{},
		{},
	}
	p := validateSeverity(incs, 0.4)
	assert.False(t, p.passed())
	assert.Contains(t, p.notes[0], "unknown severity: 2 (50.0%)")
	assert.Contains(t, p.notes[1], "zero fatalities:  1 (25.0%)")
}

func TestValidateRows(t *testing.T) {
	p := validateRows(pipeline.Stats{Read: 10, Accepted: 7, Skipped: map[string]int{"invalid_date": 1, "missing_coordinates": 2}}, 0.5)
	assert.True(t, p.passed())
	require.Len(t, p.notes, 2)
	assert.Contains(t, p.notes[0], "invalid_date")
}

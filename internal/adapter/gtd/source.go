// Package gtd reads Global Terrorism Database CSV exports.
package gtd

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Columns lists the GTD columns the service reads, in export order.
var Columns = []string{
	"eventid", "iyear", "imonth", "iday", "country_txt", "region_txt", "city",
	"latitude", "longitude", "attacktype1_txt", "nkill", "nwound",
}

// requiredColumns must be present in the header or the file is rejected.
var requiredColumns = []string{"iyear", "latitude", "longitude"}

// Encodings accepted by NewSource.
const (
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf8"
)

// Source reads one GTD CSV file. It implements pipeline.Source.
type Source struct {
	path     string
	encoding string
}

// NewSource creates a source for the CSV at path. The official GTD export is
// latin1; re-saved copies are often utf8.
func NewSource(path, encoding string) *Source {
	return &Source{path: path, encoding: encoding}
}

// Name returns the file name.
func (s *Source) Name() string { return filepath.Base(s.path) }

// Path returns the full path of the file.
func (s *Source) Path() string { return s.path }

// Records reads every data row of the file.
func (s *Source) Records(ctx context.Context) ([]domain.RawRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, s.fail(domain.IngestUnreadable, err)
	}
	defer f.Close()

	return s.read(ctx, f)
}

func (s *Source) read(ctx context.Context, r io.Reader) ([]domain.RawRecord, error) {
	cr := csv.NewReader(s.decode(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, s.fail(domain.IngestSchemaMismatch, errors.New("empty file"))
	}
	if err != nil {
		return nil, s.fail(domain.IngestUnreadable, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, s.fail(domain.IngestSchemaMismatch, err)
	}

	var out []domain.RawRecord
	for {
		if len(out)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, s.fail(domain.IngestUnreadable, err)
		}
		line, _ := cr.FieldPos(0)
		out = append(out, cols.record(fields, line))
	}
	return out, nil
}

func (s *Source) decode(r io.Reader) io.Reader {
	if s.encoding == EncodingLatin1 {
		return charmap.ISO8859_1.NewDecoder().Reader(r)
	}
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}
	return br
}

func (s *Source) fail(kind domain.IngestionKind, err error) error {
	return &domain.IngestionError{Kind: kind, Source: s.Name(), Err: err}
}

// columnIndex maps each read column to its header position, -1 when absent.
type columnIndex map[string]int

func mapColumns(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(Columns))
	for _, c := range Columns {
		idx[c] = -1
	}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if pos, ok := idx[name]; ok && pos < 0 {
			idx[name] = i
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if idx[c] < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func (c columnIndex) get(fields []string, name string) string {
	i := c[name]
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func (c columnIndex) record(fields []string, line int) domain.RawRecord {
	return domain.RawRecord{
		EventID:    c.get(fields, "eventid"),
		Year:       c.get(fields, "iyear"),
		Month:      c.get(fields, "imonth"),
		Day:        c.get(fields, "iday"),
		Latitude:   c.get(fields, "latitude"),
		Longitude:  c.get(fields, "longitude"),
		Country:    c.get(fields, "country_txt"),
		Region:     c.get(fields, "region_txt"),
		City:       c.get(fields, "city"),
		AttackType: c.get(fields, "attacktype1_txt"),
		Killed:     c.get(fields, "nkill"),
		Wounded:    c.get(fields, "nwound"),
		Line:       line,
	}
}

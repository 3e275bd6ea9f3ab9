package gtd

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// WriteCSV writes records as a utf8 GTD-shaped CSV with the Columns header.
func WriteCSV(w io.Writer, records []domain.RawRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range records {
		r := &records[i]
		row := []string{
			r.EventID, r.Year, r.Month, r.Day, r.Country, r.Region, r.City,
			r.Latitude, r.Longitude, r.AttackType, r.Killed, r.Wounded,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

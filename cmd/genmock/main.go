// Command genmock writes a deterministic synthetic GTD-shaped CSV for local
// runs and test fixtures. Incidents cluster around a fixed set of hubs and
// arrive in bursts, so the risk surface has visible hotspots.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/gtd_mock.csv -rows 20000 -seed 7
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/incident-risk-service/internal/adapter/gtd"
	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

type hub struct {
	city, country, region string
	lat, lon              float64
	share                 float64 // relative activity
}

var hubs = []hub{
	{"Baghdad", "Iraq", "Middle East & North Africa", 33.31, 44.36, 10},
	{"Mosul", "Iraq", "Middle East & North Africa", 36.34, 43.13, 5},
	{"Kabul", "Afghanistan", "South Asia", 34.53, 69.17, 6},
	{"Kandahar", "Afghanistan", "South Asia", 31.61, 65.71, 4},
	{"Karachi", "Pakistan", "South Asia", 24.86, 67.01, 4},
	{"Peshawar", "Pakistan", "South Asia", 34.01, 71.58, 4},
	{"Srinagar", "India", "South Asia", 34.08, 74.80, 2},
	{"Mogadishu", "Somalia", "Sub-Saharan Africa", 2.05, 45.32, 4},
	{"Maiduguri", "Nigeria", "Sub-Saharan Africa", 11.85, 13.16, 3},
	{"Bogotá", "Colombia", "South America", 4.71, -74.07, 2},
	{"Medellín", "Colombia", "South America", 6.24, -75.58, 1},
	{"Belfast", "United Kingdom", "Western Europe", 54.60, -5.93, 1},
	{"Manila", "Philippines", "Southeast Asia", 14.60, 120.98, 2},
}

var attackTypes = []string{
	"Bombing/Explosion", "Armed Assault", "Assassination", "Hostage Taking (Kidnapping)",
	"Facility/Infrastructure Attack", "Unarmed Assault", "Unknown",
}

type options struct {
	rows      int
	seed      uint64
	startYear int
	endYear   int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output CSV path")
	rows := flag.Int("rows", 10000, "number of incidents to generate")
	seed := flag.Uint64("seed", 1, "random seed")
	startYear := flag.Int("start-year", 2010, "first year of the synthetic history")
	endYear := flag.Int("end-year", 2017, "last year of the synthetic history")
	encoding := flag.String("encoding", gtd.EncodingLatin1, "output encoding: latin1 or utf8")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	opts := options{rows: *rows, seed: *seed, startYear: *startYear, endYear: *endYear}
	if opts.rows < 1 || opts.endYear < opts.startYear {
		return fmt.Errorf("need -rows >= 1 and -end-year >= -start-year")
	}

	records := generate(opts)

	data, err := encode(records, *encoding)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	log.Printf("wrote %d records to %s (%s)", len(records), *out, *encoding)

	printStats(records)
	return nil
}

// generate is deterministic for a given options value. Roughly a third of the
// incidents are aftershocks of an earlier incident at the same hub.
func generate(o options) []domain.RawRecord {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))

	start := time.Date(o.startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(o.endYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	spanDays := int(end.Sub(start).Hours()/24) + 1

	var total float64
	for _, h := range hubs {
		total += h.share
	}

	type seeded struct {
		hub  int
		date time.Time
	}
	events := make([]seeded, 0, o.rows)
	for len(events) < o.rows {
		if len(events) > 0 && rng.Float64() < 0.35 {
			parent := events[rng.IntN(len(events))]
			lag := time.Duration(rng.ExpFloat64()*10) * 24 * time.Hour
			if d := parent.date.Add(lag); !d.After(end) {
				events = append(events, seeded{hub: parent.hub, date: d})
				continue
			}
		}
		events = append(events, seeded{
			hub:  pickHub(rng, total),
			date: start.AddDate(0, 0, rng.IntN(spanDays)),
		})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].date.Before(events[j].date) })

	records := make([]domain.RawRecord, len(events))
	seq := map[string]int{}
	for i, ev := range events {
		h := hubs[ev.hub]
		day := ev.date.Format("20060102")
		seq[day]++

		rec := domain.RawRecord{
			EventID:    fmt.Sprintf("%s%04d", day, seq[day]),
			Year:       strconv.Itoa(ev.date.Year()),
			Month:      strconv.Itoa(int(ev.date.Month())),
			Day:        strconv.Itoa(ev.date.Day()),
			Country:    h.country,
			Region:     h.region,
			City:       h.city,
			Latitude:   formatCoord(h.lat + rng.NormFloat64()*0.3),
			Longitude:  formatCoord(h.lon + rng.NormFloat64()*0.3),
			AttackType: attackTypes[rng.IntN(len(attackTypes))],
			Killed:     strconv.Itoa(int(math.Floor(rng.ExpFloat64() * 2))),
			Wounded:    strconv.Itoa(int(math.Floor(rng.ExpFloat64() * 4))),
		}

		// Reproduce the gaps real GTD rows have.
		switch r := rng.Float64(); {
		case r < 0.08:
			rec.Killed = ""
		case r < 0.10:
			rec.Day = "0"
		case r < 0.11:
			rec.Latitude, rec.Longitude = "", ""
		}
		records[i] = rec
	}
	return records
}

// encode renders records as CSV in the requested encoding.
func encode(records []domain.RawRecord, encoding string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gtd.WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	switch encoding {
	case gtd.EncodingUTF8:
		return buf.Bytes(), nil
	case gtd.EncodingLatin1:
		return charmap.ISO8859_1.NewEncoder().Bytes(buf.Bytes())
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

func pickHub(rng *rand.Rand, total float64) int {
	x := rng.Float64() * total
	for i, h := range hubs {
		if x < h.share {
			return i
		}
		x -= h.share
	}
	return len(hubs) - 1
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func printStats(records []domain.RawRecord) {
	byCountry := map[string]int{}
	var unknownSeverity, missingCoords, unknownDay int
	for i := range records {
		r := &records[i]
		byCountry[r.Country]++
		if r.Killed == "" {
			unknownSeverity++
		}
		if !r.HasCoordinates() {
			missingCoords++
		}
		if r.Day == "0" {
			unknownDay++
		}
	}

	countries := make([]string, 0, len(byCountry))
	for c := range byCountry {
		countries = append(countries, c)
	}
	sort.Slice(countries, func(i, j int) bool {
		if byCountry[countries[i]] != byCountry[countries[j]] {
			return byCountry[countries[i]] > byCountry[countries[j]]
		}
		return countries[i] < countries[j]
	})

	fmt.Printf("\n=== Synthetic GTD ===\n")
	fmt.Printf("  records:          %d\n", len(records))
	fmt.Printf("  unknown severity: %d\n", unknownSeverity)
	fmt.Printf("  missing coords:   %d\n", missingCoords)
	fmt.Printf("  unknown day:      %d\n", unknownDay)
	fmt.Printf("\n  by country:\n")
	for _, c := range countries {
		fmt.Printf("    %-16s %d\n", c, byCountry[c])
	}
}

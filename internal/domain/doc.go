// Package domain models historical terrorism incidents and the risk surface
// derived from them.
//
// # Data Source
//
// Incidents come from the Global Terrorism Database (GTD), distributed by
// START at the University of Maryland as a wide CSV (historically latin1
// encoded). Only a handful of its ~135 columns matter here:
//
//	eventid          12-digit ID, e.g. "201701010001" (YYYYMMDD + sequence)
//	iyear imonth iday  split date; 0 marks an unknown month or day
//	latitude longitude WGS-84 decimal degrees, blank when not geocoded
//	country_txt region_txt city
//	attacktype1_txt  primary attack class, e.g. "Bombing/Explosion"
//	nkill nwound     fatalities / injuries, blank when unknown, sometimes "3.0"
//
// The same columns are read from the Postgres "events" table that older
// deployments loaded the CSV into (year/month/day/country/region/attacktype
// without the GTD suffixes).
//
// # Normalization
//
// Date:
//
//	An unknown month or day (0) becomes 1, keeping year or month granularity.
//	Impossible calendar dates and dates after the ingestion time are rejected.
//
// Coordinates:
//
//	Both columns must parse and lie within [-90, 90] x [-180, 180]. Rows with
//	blank coordinates may be recovered by forward geocoding city + country
//	when a geocoder is configured; otherwise they are excluded.
//
// Severity:
//
//	nkill is the severity proxy. Blank, negative and unparseable values are
//	kept as unknown rather than zero; the risk model weights unknown severity
//	at its configured minimum weight (see model.Kernel).
//
// # ID Generation
//
// The GTD eventid is used verbatim. Rows without one get a deterministic
// UUIDv5 over date|lat|lon|attack type|city|nkill, so reloading the same file
// yields the same IDs. See [generateID].
package domain

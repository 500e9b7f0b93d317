package decode

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vinsync-io/vinsync/internal/staging"
)

// ExpectedHeaders is the header set a deregistration batch file must carry.
// Column order does not matter; extra columns are ignored.
var ExpectedHeaders = []string{"VIN", "VEHICLE_MAKE", "VEHICLE_MODEL", "DEREG_DATE", "REGNO"}

// Sentinel errors for decoding.
var (
	// ErrHeaderValidation indicates the file's header row does not contain
	// the expected columns. Fatal for that file, never silently ignored.
	ErrHeaderValidation = errors.New("header validation failed")
)

type (
	// HeaderError wraps ErrHeaderValidation with the header actually received,
	// so notifications can show expected versus actual.
	HeaderError struct {
		Actual []string
	}

	// Decoder decodes deregistration CSV batches, applying the allowed-makes
	// filter. A Decoder is stateless and reusable across files.
	Decoder struct {
		allowedMakes map[string]bool
		logger       *slog.Logger
	}

	// Iterator yields validated records one row at a time, bounding memory
	// for large files. Rows failing the row-level rules (disallowed make,
	// missing VIN) are skipped, not failed; a read error ends iteration.
	Iterator struct {
		reader *csv.Reader
		index  map[string]int // header name -> column index
		dec    *Decoder
	}
)

// Error implements the error interface.
func (e *HeaderError) Error() string {
	return fmt.Sprintf("%v: expected columns %s, received %s",
		ErrHeaderValidation,
		strings.Join(ExpectedHeaders, ", "),
		strings.Join(e.Actual, ", "))
}

// Unwrap lets errors.Is match ErrHeaderValidation.
func (e *HeaderError) Unwrap() error {
	return ErrHeaderValidation
}

// NewDecoder creates a Decoder filtering on the given allowed makes.
func NewDecoder(cfg *Config, logger *slog.Logger) *Decoder {
	allowed := make(map[string]bool, len(cfg.AllowedMakes))
	for _, m := range cfg.AllowedMakes {
		allowed[strings.ToUpper(strings.TrimSpace(m))] = true
	}

	return &Decoder{allowedMakes: allowed, logger: logger}
}

// Decode reads and validates the header row, returning an Iterator over the
// remaining rows. A header mismatch returns a *HeaderError and no iterator;
// the file must not be staged.
func (d *Decoder) Decode(r io.Reader) (*Iterator, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Row width validated per field lookup.

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &HeaderError{Actual: nil}
		}

		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToUpper(strings.TrimSpace(name))] = i
	}

	for _, name := range ExpectedHeaders {
		if _, ok := index[name]; !ok {
			return nil, &HeaderError{Actual: header}
		}
	}

	return &Iterator{reader: reader, index: index, dec: d}, nil
}

// DecodeAll drains an iterator into a slice. Convenient for callers that need
// the record count before staging; files have a bounded row count.
func (d *Decoder) DecodeAll(r io.Reader) ([]staging.VehicleRecord, error) {
	it, err := d.Decode(r)
	if err != nil {
		return nil, err
	}

	var records []staging.VehicleRecord

	for {
		record, err := it.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}

		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}
}

// Next returns the next record passing the row-level rules, or io.EOF when
// the file is exhausted.
func (it *Iterator) Next() (staging.VehicleRecord, error) {
	for {
		row, err := it.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return staging.VehicleRecord{}, io.EOF
			}

			return staging.VehicleRecord{}, fmt.Errorf("failed to read row: %w", err)
		}

		vehicleMake := strings.ToUpper(strings.TrimSpace(it.field(row, "VEHICLE_MAKE")))
		if !it.dec.allowedMakes[vehicleMake] {
			continue
		}

		vin := strings.ToUpper(strings.TrimSpace(it.field(row, "VIN")))
		if vin == "" {
			it.dec.logger.Warn("skipping record without VIN",
				slog.String("vehicle_make", vehicleMake))

			continue
		}

		return staging.VehicleRecord{
			Make:      vehicleMake,
			Model:     strings.TrimSpace(it.field(row, "VEHICLE_MODEL")),
			VIN:       vin,
			DeregDate: it.dec.normalizeDate(it.field(row, "DEREG_DATE")),
			RegPlate:  strings.ToUpper(strings.TrimSpace(it.field(row, "REGNO"))),
		}, nil
	}
}

// field returns the named column of a row, tolerating short rows.
func (it *Iterator) field(row []string, name string) string {
	i := it.index[name]
	if i >= len(row) {
		return ""
	}

	return row[i]
}

// normalizeDate converts source dates to ISO (YYYY-MM-DD). The feed uses
// compact yyyymmdd; ISO input passes through. Unrecognized values are passed
// through unchanged with a warning rather than dropped, so the CRM sees what
// the source sent.
func (d *Decoder) normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if len(raw) == 8 && isDigits(raw) {
		if parsed, err := time.Parse("20060102", raw); err == nil {
			return parsed.Format("2006-01-02")
		}
	}

	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed.Format("2006-01-02")
	}

	d.logger.Warn("unrecognized deregistration date; passing through",
		slog.String("raw", raw))

	return raw
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

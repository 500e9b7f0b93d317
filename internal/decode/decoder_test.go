package decode

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDecoder(makes ...string) *Decoder {
	if len(makes) == 0 {
		makes = []string{"HYUNDAI", "ISUZU", "RENAULT"}
	}

	return NewDecoder(&Config{AllowedMakes: makes}, slog.New(slog.DiscardHandler))
}

func TestDecode_HeaderValidation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "exact expected header",
			input:   "VIN,VEHICLE_MAKE,VEHICLE_MODEL,DEREG_DATE,REGNO\n",
			wantErr: false,
		},
		{
			name:    "reordered columns accepted",
			input:   "REGNO,DEREG_DATE,VEHICLE_MODEL,VEHICLE_MAKE,VIN\n",
			wantErr: false,
		},
		{
			name:    "lower case and whitespace accepted",
			input:   " vin , vehicle_make ,vehicle_model,dereg_date,regno\n",
			wantErr: false,
		},
		{
			name:    "extra columns ignored",
			input:   "VIN,VEHICLE_MAKE,VEHICLE_MODEL,DEREG_DATE,REGNO,EXTRA\n",
			wantErr: false,
		},
		{
			name:    "missing column rejected",
			input:   "VIN,VEHICLE_MAKE,VEHICLE_MODEL,DEREG_DATE\n",
			wantErr: true,
		},
		{
			name:    "unrelated header rejected",
			input:   "foo,bar,baz\n",
			wantErr: true,
		},
		{
			name:    "empty file rejected",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := testDecoder().Decode(strings.NewReader(tt.input))

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrHeaderValidation)

				var headerErr *HeaderError
				assert.ErrorAs(t, err, &headerErr)
				assert.Nil(t, it)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, it)
			}
		})
	}
}

func TestHeaderError_Message(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	err := &HeaderError{Actual: []string{"foo", "bar"}}

	assert.Contains(t, err.Error(), "VIN, VEHICLE_MAKE, VEHICLE_MODEL, DEREG_DATE, REGNO")
	assert.Contains(t, err.Error(), "foo, bar")
}

func TestDecodeAll_FiltersAndNormalizes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	input := strings.Join([]string{
		"VIN,VEHICLE_MAKE,VEHICLE_MODEL,DEREG_DATE,REGNO",
		"vin001,HYUNDAI,Kona,20240115,abc123",
		"VIN002,TOYOTA,Corolla,20240116,DEF456",  // disallowed make
		",ISUZU,D-Max,20240117,GHI789",           // missing VIN
		"VIN003,isuzu,D-Max,2024-01-18,JKL012",   // lower-case make, ISO date
		"VIN004,RENAULT,Koleos,someday,MNO345",   // unparseable date
		"VIN005,HYUNDAI,Tucson,,PQR678",          // no date
	}, "\n")

	records, err := testDecoder().DecodeAll(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "VIN001", records[0].VIN)
	assert.Equal(t, "HYUNDAI", records[0].Make)
	assert.Equal(t, "Kona", records[0].Model)
	assert.Equal(t, "2024-01-15", records[0].DeregDate)
	assert.Equal(t, "ABC123", records[0].RegPlate)

	assert.Equal(t, "VIN003", records[1].VIN)
	assert.Equal(t, "ISUZU", records[1].Make)
	assert.Equal(t, "2024-01-18", records[1].DeregDate)

	assert.Equal(t, "VIN004", records[2].VIN)
	assert.Equal(t, "someday", records[2].DeregDate, "unrecognized dates pass through")

	assert.Equal(t, "VIN005", records[3].VIN)
	assert.Empty(t, records[3].DeregDate)
}

func TestDecodeAll_HeaderOnlyFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	records, err := testDecoder().DecodeAll(
		strings.NewReader("VIN,VEHICLE_MAKE,VEHICLE_MODEL,DEREG_DATE,REGNO\n"))

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIterator_ReordersColumnsPerHeader(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	input := strings.Join([]string{
		"REGNO,VIN,DEREG_DATE,VEHICLE_MAKE,VEHICLE_MODEL",
		"abc123,VIN001,20240115,HYUNDAI,Kona",
	}, "\n")

	it, err := testDecoder().Decode(strings.NewReader(input))
	require.NoError(t, err)

	record, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "VIN001", record.VIN)
	assert.Equal(t, "HYUNDAI", record.Make)
	assert.Equal(t, "ABC123", record.RegPlate)

	_, err = it.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestIterator_ToleratesShortRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	input := strings.Join([]string{
		"VIN,VEHICLE_MAKE,VEHICLE_MODEL,DEREG_DATE,REGNO",
		"VIN001,HYUNDAI", // truncated row
	}, "\n")

	records, err := testDecoder().DecodeAll(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "VIN001", records[0].VIN)
	assert.Empty(t, records[0].Model)
	assert.Empty(t, records[0].DeregDate)
	assert.Empty(t, records[0].RegPlate)
}

func TestNormalizeDate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "compact yyyymmdd", raw: "20240115", want: "2024-01-15"},
		{name: "iso passthrough", raw: "2024-01-15", want: "2024-01-15"},
		{name: "whitespace trimmed", raw: " 20240115 ", want: "2024-01-15"},
		{name: "empty", raw: "", want: ""},
		{name: "invalid calendar date passes through", raw: "20241345", want: "20241345"},
		{name: "free text passes through", raw: "someday", want: "someday"},
	}

	dec := testDecoder()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dec.normalizeDate(tt.raw))
		})
	}
}

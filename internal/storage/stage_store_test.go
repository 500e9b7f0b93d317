package storage

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestIsConflictWindowError(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "serialization failure",
			err:  &pq.Error{Code: pq.ErrorCode(pqSerializationFailure)},
			want: true,
		},
		{
			name: "deadlock detected",
			err:  &pq.Error{Code: pq.ErrorCode(pqDeadlockDetected)},
			want: true,
		},
		{
			name: "lock not available",
			err:  &pq.Error{Code: pq.ErrorCode(pqLockNotAvailable)},
			want: true,
		},
		{
			name: "unique violation is not a conflict window",
			err:  &pq.Error{Code: pq.ErrorCode("23505")},
			want: false,
		},
		{
			name: "wrapped conflict error",
			err:  errors.Join(errors.New("mutation failed"), &pq.Error{Code: pq.ErrorCode(pqSerializationFailure)}),
			want: true,
		},
		{
			name: "no pending row is terminal, not settling",
			err:  ErrNoPendingRow,
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConflictWindowError(tt.err); got != tt.want {
				t.Errorf("isConflictWindowError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDeregDateParam(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if p := deregDateParam(""); p.Valid {
		t.Error("empty date must map to SQL NULL")
	}

	p := deregDateParam("2024-06-30")
	if !p.Valid || p.String != "2024-06-30" {
		t.Errorf("deregDateParam(2024-06-30) = %+v, want valid 2024-06-30", p)
	}
}

func TestNewStageStore_NilConnection(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if _, err := NewStageStore(nil); !errors.Is(err, ErrNoDatabaseConnection) {
		t.Errorf("NewStageStore(nil) = %v, want ErrNoDatabaseConnection", err)
	}
}

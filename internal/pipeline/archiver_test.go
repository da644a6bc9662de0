package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobArchiver struct {
	eventsBefore time.Time
	auditBefore  time.Time
	err          error
}

func (f *fakeBlobArchiver) ArchiveEvents(_ context.Context, before time.Time) (int64, error) {
	f.eventsBefore = before
	return 3, f.err
}

func (f *fakeBlobArchiver) ArchiveAudit(_ context.Context, before time.Time) (int64, error) {
	f.auditBefore = before
	return 1, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiverRunUsesRetentionCutoff(t *testing.T) {
	blob := &fakeBlobArchiver{}
	a := NewArchiver(blob, 30, quietLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, a.Run(context.Background()))
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, want, blob.eventsBefore)
	assert.Equal(t, want, blob.auditBefore)
}

func TestArchiverRunStopsOnEventError(t *testing.T) {
	blob := &fakeBlobArchiver{err: errors.New("bucket gone")}
	a := NewArchiver(blob, 1, quietLogger())
	require.Error(t, a.Run(context.Background()))
	assert.True(t, blob.auditBefore.IsZero())
}

func TestNextCronTime(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 30, 45, 0, time.UTC)
	cases := []struct {
		expr string
		want time.Time
	}{
		{"0 3 1 * *", time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 1, 15, 10, 45, 0, 0, time.UTC)},
		{"0 9-17/4 * * *", time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC)},
		{"31 10 * * *", time.Date(2026, 1, 15, 10, 31, 0, 0, time.UTC)},
		{"0 0 * * 0", time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC)},
		{"5,50 10 15 1 *", time.Date(2026, 1, 15, 10, 50, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			s, err := parseCron(tc.expr)
			require.NoError(t, err)
			got, err := s.next(base)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "a * * * *", "5-1 * * * *"} {
		_, err := parseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestNextCronImpossibleDate(t *testing.T) {
	s, err := parseCron("0 0 31 2 *")
	require.NoError(t, err)
	_, err = s.next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestRunCronStopsOnCancel(t *testing.T) {
	a := NewArchiver(&fakeBlobArchiver{}, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.RunCron(ctx, "0 3 * * *"), context.Canceled)
	require.Error(t, a.RunCron(context.Background(), "bad"))
}

package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malscan/malscan/pkg/types"
)

type fakeRow struct {
	values []interface{}
	err    error
}

func (f *fakeRow) Scan(dest ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	for i, v := range f.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *[]byte:
			if v == nil {
				*d = nil
			} else {
				*d = v.([]byte)
			}
		case *time.Time:
			*d = v.(time.Time)
		case *types.JobStatus:
			*d = types.JobStatus(v.(string))
		}
	}
	return nil
}

func TestScanJobNoRows(t *testing.T) {
	_, err := scanJob(&fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanFileNoRows(t *testing.T) {
	_, err := scanFile(&fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanJobNullableColumns(t *testing.T) {
	now := time.Now().UTC()
	row := &fakeRow{values: []interface{}{
		"job-1", "file-1", "queued", nil, 0, 5, nil, nil, now, now,
	}}

	job, err := scanJob(row)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, types.JobStatusQueued, job.Status)
	assert.Empty(t, job.CurrentStage)
	assert.Empty(t, job.ErrorMessage)
	assert.Nil(t, job.Result)
}

func TestScanJobWithStoredReport(t *testing.T) {
	report := types.Report{JobID: "job-1", Verdict: types.VerdictMalicious, Score: 90}
	data, err := json.Marshal(report)
	require.NoError(t, err)

	now := time.Now().UTC()
	row := &fakeRow{values: []interface{}{
		"job-1", "file-1", "done", nil, 5, 5, nil, data, now, now,
	}}

	job, err := scanJob(row)
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, types.VerdictMalicious, job.Result.Verdict)
	assert.Equal(t, 90, job.Result.Score)
}

func TestScanJobCorruptReport(t *testing.T) {
	now := time.Now().UTC()
	row := &fakeRow{values: []interface{}{
		"job-1", "file-1", "done", nil, 5, 5, nil, []byte("{broken"), now, now,
	}}

	_, err := scanJob(row)
	assert.Error(t, err)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, types.JobStatusDone.Terminal())
	assert.True(t, types.JobStatusFailed.Terminal())
	assert.False(t, types.JobStatusQueued.Terminal())
	assert.False(t, types.JobStatusScanning.Terminal())
}

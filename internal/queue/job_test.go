package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCodecRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  Job
	}{
		{
			name: "column processor job",
			job: ColumnProcessorJob{
				ProjectID:  uuid.New(),
				DocumentID: uuid.New(),
				ColumnID:   uuid.New(),
				RunID:      uuid.New(),
			},
		},
		{
			name: "prompt run job",
			job:  PromptRunJob{PromptRunID: uuid.New()},
		},
		{
			name: "bulk process job with explicit documents",
			job: BulkProcessJob{
				ProjectID:   uuid.New(),
				ColumnID:    uuid.New(),
				DocumentIDs: []uuid.UUID{uuid.New(), uuid.New()},
			},
		},
		{
			name: "bulk process job covering whole project",
			job: BulkProcessJob{
				ProjectID: uuid.New(),
				ColumnID:  uuid.New(),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			payload, err := Marshal(tc.job)
			require.NoError(t, err)

			decoded, err := Unmarshal(payload)
			require.NoError(t, err)

			assert.Equal(t, tc.job.Kind(), decoded.Kind())
			assert.Equal(t, tc.job, decoded)
		})
	}
}

func TestJobCodecWireFieldNames(t *testing.T) {
	t.Parallel()

	job := ColumnProcessorJob{
		ProjectID:  uuid.New(),
		DocumentID: uuid.New(),
		ColumnID:   uuid.New(),
		RunID:      uuid.New(),
	}

	payload, err := Marshal(job)
	require.NoError(t, err)

	// Wire names are a storage contract; renaming them breaks queued jobs
	// across deploys.
	assert.Contains(t, string(payload), `"type":"column_processor"`)
	assert.Contains(t, string(payload), `"projectId"`)
	assert.Contains(t, string(payload), `"documentId"`)
	assert.Contains(t, string(payload), `"columnId"`)
	assert.Contains(t, string(payload), `"runId"`)
}

func TestJobCodecRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{
			name:    "unknown kind",
			payload: `{"type":"reindex_everything"}`,
			wantErr: ErrUnknownJobKind,
		},
		{
			name:    "not json",
			payload: `{{{`,
			wantErr: ErrMalformedJob,
		},
		{
			name:    "column processor job missing run ID",
			payload: `{"type":"column_processor","projectId":"` + uuid.NewString() + `"}`,
			wantErr: ErrMalformedJob,
		},
		{
			name:    "prompt run job missing ID",
			payload: `{"type":"prompt_run"}`,
			wantErr: ErrMalformedJob,
		},
		{
			name:    "bulk job missing column",
			payload: `{"type":"bulk_process","projectId":"` + uuid.NewString() + `"}`,
			wantErr: ErrMalformedJob,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Unmarshal([]byte(tc.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestMarshalRejectsForeignJobTypes(t *testing.T) {
	t.Parallel()

	_, err := Marshal(unknownJob{})
	assert.ErrorIs(t, err, ErrUnknownJobKind)
}

type unknownJob struct{}

func (unknownJob) Kind() JobKind { return JobKind("mystery") }

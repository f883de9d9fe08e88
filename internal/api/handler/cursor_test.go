package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/job-collector/internal/worker/storage"
)

func TestJobCursor_RoundTrip(t *testing.T) {
	want := &storage.JobCursor{
		CreatedAt: time.Date(2026, 10, 18, 9, 30, 0, 123456789, time.UTC),
		JobID:     "0b6f3a52-2a5e-4a4c-8d0a-7d6f1c9e4b21",
	}

	got, err := DecodeJobCursor(EncodeJobCursor(want))
	require.NoError(t, err)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.JobID, got.JobID)
}

func TestDecodeJobCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		wantNil bool
		wantErr bool
	}{
		{name: "empty", cursor: "", wantNil: true},
		{name: "not base64", cursor: "!!", wantErr: true},
		{name: "no separator", cursor: base64.URLEncoding.EncodeToString([]byte("12345")), wantErr: true},
		{name: "missing job id", cursor: base64.URLEncoding.EncodeToString([]byte("12345|")), wantErr: true},
		{name: "bad timestamp", cursor: base64.URLEncoding.EncodeToString([]byte("abc|job")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJobCursor(tt.cursor)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
			}
		})
	}
}

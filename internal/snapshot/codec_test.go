package snapshot

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelineerrors "github.com/eventstar/eventstar/internal/errors"
	"github.com/eventstar/eventstar/pkg/types"
)

var at = time.Date(2021, time.August, 9, 7, 30, 15, 0, time.UTC)

func rawRows() []types.RawEvent {
	return []types.RawEvent{
		{Event: "page_view", Time: at, VisitorID: "v1", UserID: types.Some("42"),
			Browser: types.Some("Chrome"), OS: types.Some("Windows"), CountryCode: "NL"},
		{Event: "search", Time: at.Add(time.Second), VisitorID: "v2",
			Browser: types.Some(""), CountryCode: "US"},
	}
}

func TestCodec_ColumnsFollowStageSchema(t *testing.T) {
	assert.Equal(t, types.StageRaw.Schema().ColumnNames(), Raw.columnNames())
	assert.Equal(t, types.StagePreprocess.Schema().ColumnNames(), Preprocess.columnNames())
}

func TestCodec_RawRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Raw.Encode(&buf, "exec-1", rawRows()))

	h, rows, err := Raw.Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, "raw", h.Stage)
	assert.Equal(t, "exec-1", h.ExecutionID)
	assert.Equal(t, 2, h.RowCount)
	assert.Equal(t, rawRows(), rows)

	// absent and empty survive as distinct states
	assert.False(t, rows[1].UserID.Valid)
	assert.True(t, rows[1].Browser.Valid)
	assert.False(t, rows[1].OS.Valid)
}

func TestCodec_PreprocessRoundTrip(t *testing.T) {
	in := []types.ReconciledEvent{
		{Event: "login", Time: at, VisitorID: "abc", UserID: types.Some("42"),
			Browser: types.Some("Mobile Safari"), OS: types.Some("iOS"),
			Country: "Netherlands", DeviceType: types.DeviceMobile},
	}
	var buf bytes.Buffer
	require.NoError(t, Preprocess.Encode(&buf, "exec-2", in))

	_, rows, err := Preprocess.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, rows)
}

func TestCodec_EmptyBatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Raw.Encode(&buf, "empty", nil))

	h, rows, err := Raw.Decode(&buf)
	require.NoError(t, err)
	assert.Zero(t, h.RowCount)
	assert.Empty(t, rows)
}

func TestCodec_DetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Raw.Encode(&buf, "exec-1", rawRows()))
	data := buf.Bytes()

	// Flip a byte in the last column block payload.
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-2] ^= 0xFF

	_, _, err := Raw.Decode(bytes.NewReader(corrupted))
	require.Error(t, err)
	assert.Equal(t, pipelineerrors.ErrCategorySnapshot, pipelineerrors.GetCategory(err))
	assert.Equal(t, pipelineerrors.CodeCorruptSnapshot, pipelineerrors.GetCode(err))
}

func TestCodec_DetectsTruncation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Raw.Encode(&buf, "exec-1", rawRows()))

	_, _, err := Raw.Decode(bytes.NewReader(buf.Bytes()[:buf.Len()-5]))
	assert.Equal(t, pipelineerrors.CodeCorruptSnapshot, pipelineerrors.GetCode(err))

	_, _, err = Raw.Decode(bytes.NewReader([]byte("nope")))
	assert.Equal(t, pipelineerrors.CodeCorruptSnapshot, pipelineerrors.GetCode(err))
}

func TestCodec_RejectsOtherStage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Raw.Encode(&buf, "exec-1", rawRows()))

	_, _, err := Preprocess.Decode(&buf)
	assert.Equal(t, pipelineerrors.CodeSchemaMismatch, pipelineerrors.GetCode(err))
}

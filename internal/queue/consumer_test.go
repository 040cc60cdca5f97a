package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	perrors "github.com/adverant/nexus/tablescan-worker/internal/errors"
	"github.com/adverant/nexus/tablescan-worker/internal/processor"
	"github.com/adverant/nexus/tablescan-worker/internal/storage"
	"github.com/adverant/nexus/tablescan-worker/internal/table"
)

type fakeExporter struct {
	calls  int
	result *processor.ExportResult
	err    error
	block  bool
}

func (f *fakeExporter) Export(ctx context.Context, req *processor.ExportRequest) (*processor.ExportResult, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []storage.Status
}

func (n *recordingNotifier) Update(ctx context.Context, jobID string, status storage.Status, detail interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
	return nil
}

func newTestHandler(t *testing.T, exp processor.Exporter, timeoutMs int64) (*ExportHandler, *storage.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	h, err := NewExportHandler(&ConsumerConfig{
		Exporter:          exp,
		Store:             store,
		Notifier:          notifier,
		ProcessingTimeout: timeoutMs,
	})
	require.NoError(t, err)
	return h, store, notifier
}

func exportTask(t *testing.T, req *processor.ExportRequest) *asynq.Task {
	t.Helper()
	task, err := NewExportTask(req)
	require.NoError(t, err)
	return task
}

func TestProcessTaskCompletes(t *testing.T) {
	exp := &fakeExporter{result: &processor.ExportResult{
		Rows:       table.Table{{"a", "b"}, {"c", "d"}},
		CSV:        []byte("a,b\nc,d\n"),
		Filename:   "table-j1.csv",
		MessageIDs: []string{"10", "11"},
		Images:     2,
		Failures:   []processor.ImageFailure{{Source: processor.ImageSource{URL: "u"}, Code: perrors.ErrorFetchFailed, Error: "HTTP 404"}},
	}}
	h, store, notifier := newTestHandler(t, exp, 0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &storage.ExportRecord{ID: "j1", Status: storage.StatusQueued}))

	require.NoError(t, h.ProcessTask(ctx, exportTask(t, &processor.ExportRequest{JobID: "j1", ChannelID: "c1"})))

	rec, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, storage.StatusCompleted, rec.Status)
	require.Equal(t, 2, rec.Rows)
	require.Equal(t, 2, rec.Images)
	require.Equal(t, []string{"10", "11"}, rec.MessageIDs)
	require.Equal(t, []byte("a,b\nc,d\n"), rec.CSV)
	require.Contains(t, string(rec.Failures), "FETCH_FAILED")
	require.Equal(t, []storage.Status{storage.StatusProcessing, storage.StatusCompleted}, notifier.statuses)
}

func TestProcessTaskSkipsCompletedJob(t *testing.T) {
	exp := &fakeExporter{}
	h, store, _ := newTestHandler(t, exp, 0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &storage.ExportRecord{ID: "j1", Status: storage.StatusCompleted}))

	require.NoError(t, h.ProcessTask(ctx, exportTask(t, &processor.ExportRequest{JobID: "j1", ChannelID: "c1"})))
	require.Zero(t, exp.calls)
}

func TestProcessTaskCreatesMissingRecord(t *testing.T) {
	exp := &fakeExporter{result: &processor.ExportResult{}}
	h, store, _ := newTestHandler(t, exp, 0)
	ctx := context.Background()

	require.NoError(t, h.ProcessTask(ctx, exportTask(t, &processor.ExportRequest{JobID: "j2", ChannelID: "c9"})))

	rec, err := store.Get(ctx, "j2")
	require.NoError(t, err)
	require.Equal(t, storage.StatusCompleted, rec.Status)
	require.Equal(t, "c9", rec.ChannelID)
	require.Contains(t, string(rec.Request), `"channelId":"c9"`)
}

func TestProcessTaskNoAttachmentsIsPermanent(t *testing.T) {
	exp := &fakeExporter{err: perrors.NewNoAttachmentsError("j3", 4)}
	h, store, notifier := newTestHandler(t, exp, 0)
	ctx := context.Background()

	err := h.ProcessTask(ctx, exportTask(t, &processor.ExportRequest{JobID: "j3", ChannelID: "c1"}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	rec, getErr := store.Get(ctx, "j3")
	require.NoError(t, getErr)
	require.Equal(t, storage.StatusFailed, rec.Status)
	require.Equal(t, string(perrors.ErrorNoAttachments), rec.ErrorCode)
	require.Equal(t, []storage.Status{storage.StatusProcessing, storage.StatusFailed}, notifier.statuses)
}

func TestProcessTaskTimeout(t *testing.T) {
	exp := &fakeExporter{block: true}
	h, store, _ := newTestHandler(t, exp, 10)
	ctx := context.Background()

	err := h.ProcessTask(ctx, exportTask(t, &processor.ExportRequest{JobID: "j4", ChannelID: "c1"}))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	code, ok := perrors.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, perrors.ErrorProcessingTimeout, code)

	rec, getErr := store.Get(ctx, "j4")
	require.NoError(t, getErr)
	require.Equal(t, storage.StatusFailed, rec.Status)
	require.Equal(t, string(perrors.ErrorProcessingTimeout), rec.ErrorCode)
}

func TestProcessTaskRejectsMalformedPayload(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeExporter{}, 0)

	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeExport, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeExport, []byte(`{"channelId":"c"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewExportHandlerRequiresDependencies(t *testing.T) {
	_, err := NewExportHandler(&ConsumerConfig{Store: storage.NewMemoryStore()})
	require.Error(t, err)
	_, err = NewExportHandler(&ConsumerConfig{Exporter: &fakeExporter{}})
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

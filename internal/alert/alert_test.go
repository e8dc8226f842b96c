package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

func testAlert() types.Alert {
	return types.Alert{
		Level:     types.AlertLevelWarning,
		Category:  types.AlertCategoryUntrackedCalendar,
		StreamID:  "4f0c2a9e-stream",
		Message:   "calendar cal-1 created but not recorded",
		Details:   map[string]interface{}{"calendarId": "cal-1"},
		Timestamp: time.Date(2026, 2, 23, 14, 30, 0, 0, time.UTC),
	}
}

func TestConsoleSink_Send(t *testing.T) {
	var buf bytes.Buffer
	sink := &ConsoleSink{out: &buf}
	assert.Equal(t, "console", sink.Name())

	ctx := context.Background()
	for _, level := range []types.AlertLevel{types.AlertLevelError, types.AlertLevelWarning, types.AlertLevelInfo} {
		a := testAlert()
		a.Level = level
		require.NoError(t, sink.Send(ctx, a))
	}
	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "[4f0c2a9e-stream]"))
	assert.Contains(t, out, "calendar cal-1 created but not recorded")
}

func TestWebhookSink_Send_Success(t *testing.T) {
	var (
		received []byte
		category string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		category = r.Header.Get("X-Wastecal-Category")
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	alert := testAlert()
	require.NoError(t, sink.Send(context.Background(), alert))

	var got types.Alert
	require.NoError(t, json.Unmarshal(received, &got))
	assert.Equal(t, alert.Message, got.Message)
	assert.Equal(t, alert.StreamID, got.StreamID)
	assert.Equal(t, types.AlertCategoryUntrackedCalendar, category)
}

func TestWebhookSink_Send_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := NewWebhookSink(ts.URL).Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFileSink_Send(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	assert.Equal(t, "file", sink.Name())

	alert := testAlert()
	require.NoError(t, sink.Send(context.Background(), alert))
	require.NoError(t, sink.Send(context.Background(), alert))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var got types.Alert
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, alert.Message, got.Message)
	assert.Equal(t, alert.Category, got.Category)
}

func TestNewDispatcher(t *testing.T) {
	d, err := NewDispatcher([]types.AlertConfig{
		{Type: types.AlertConsole},
		{Type: types.AlertFile, Path: filepath.Join(t.TempDir(), "a.jsonl")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"console", "file"}, d.Sinks())

	_, err = NewDispatcher([]types.AlertConfig{{Type: types.AlertWebhook}}, nil)
	assert.ErrorContains(t, err, "webhook URL required")

	_, err = NewDispatcher([]types.AlertConfig{{Type: "pager"}}, nil)
	assert.ErrorContains(t, err, `unknown alert type "pager"`)
}

// errSink is a test sink that always returns an error.
type errSink struct{}

func (s *errSink) Send(_ context.Context, _ types.Alert) error { return fmt.Errorf("sink error") }
func (s *errSink) Name() string                                { return "error-sink" }

// recordSink records all alerts sent to it.
type recordSink struct {
	alerts []types.Alert
}

func (s *recordSink) Send(_ context.Context, a types.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}
func (s *recordSink) Name() string { return "record-sink" }

func TestDispatcher_MultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	d := &Dispatcher{sinks: []Sink{s1, s2}, logger: slog.New(slog.DiscardHandler)}

	alert := testAlert()
	d.Dispatch(context.Background(), alert)

	assert.Len(t, s1.alerts, 1)
	assert.Len(t, s2.alerts, 1)
	assert.Equal(t, alert.Message, s1.alerts[0].Message)
}

func TestDispatcher_SinkError_ContinuesOthers(t *testing.T) {
	recording := &recordSink{}
	d := &Dispatcher{
		sinks:  []Sink{&errSink{}, recording},
		logger: slog.New(slog.DiscardHandler),
	}

	d.Dispatch(context.Background(), testAlert())

	// Even though first sink failed, second should have received the alert
	assert.Len(t, recording.alerts, 1)
}

func TestDispatcher_AlertFuncStampsTime(t *testing.T) {
	rec := &recordSink{}
	d := &Dispatcher{sinks: []Sink{rec}, logger: slog.New(slog.DiscardHandler)}

	d.AlertFunc()(types.Alert{Level: types.AlertLevelInfo, Message: "stream split"})
	require.Len(t, rec.alerts, 1)
	assert.False(t, rec.alerts[0].Timestamp.IsZero())
}

func TestSubjectOf(t *testing.T) {
	assert.Equal(t, "[warning] UNTRACKED_CALENDAR 4f0c2a9e-stream", subjectOf(testAlert()))
	assert.Equal(t, "[info]", subjectOf(types.Alert{Level: types.AlertLevelInfo}))
}

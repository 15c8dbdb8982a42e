package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteWriterRoundTrip(t *testing.T) {
	w, err := NewSQLiteWriter(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []Row{
		{ReceivedAt: base, ProjectKey: "key", DeviceID: "d1", SensorID: "s1", Value: []string{"41"}, ReportedAt: "t1"},
		{ReceivedAt: base.Add(time.Second), ProjectKey: "key", DeviceID: "d1", SensorID: "s1", Value: []string{"42", "C"}, ReportedAt: "t2"},
		{ReceivedAt: base, ProjectKey: "key", DeviceID: "d1", SensorID: "s2", Value: []string{"7"}},
	}
	if err := w.Write(ctx, rows); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := w.Latest(ctx, "d1", "s1", 10)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ReportedAt != "t2" || len(got[0].Value) != 2 || got[0].Value[1] != "C" {
		t.Errorf("newest row mismatch: %+v", got[0])
	}
	if !got[1].ReceivedAt.Equal(base) {
		t.Errorf("ReceivedAt = %v, want %v", got[1].ReceivedAt, base)
	}

	got, err = w.Latest(ctx, "d1", "s1", 1)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 1 || got[0].ReportedAt != "t2" {
		t.Errorf("limit not applied: %+v", got)
	}
}

func TestSQLiteWriterOrdersWithinSecond(t *testing.T) {
	w, err := NewSQLiteWriter(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	whole := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []Row{
		{ReceivedAt: whole.Add(500 * time.Millisecond), DeviceID: "d1", SensorID: "s1", Value: []string{"later"}},
		{ReceivedAt: whole, DeviceID: "d1", SensorID: "s1", Value: []string{"earlier"}},
		{ReceivedAt: whole.Add(50 * time.Millisecond), DeviceID: "d1", SensorID: "s1", Value: []string{"middle"}},
	}
	if err := w.Write(ctx, rows); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := w.Latest(ctx, "d1", "s1", 10)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	want := []string{"later", "middle", "earlier"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, v := range want {
		if got[i].Value[0] != v {
			t.Errorf("row %d = %s, want %s", i, got[i].Value[0], v)
		}
	}
	if !got[2].ReceivedAt.Equal(whole) {
		t.Errorf("ReceivedAt = %v, want %v", got[2].ReceivedAt, whole)
	}
}

func TestSQLiteWriterEmptyBatch(t *testing.T) {
	w, err := NewSQLiteWriter(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	if err := w.Write(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

func TestRecorderWithSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}

	rec := NewRecorder(w, 100, 10, time.Hour)
	rec.Start()
	rec.Record("key", rawRows(3))
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	reopened, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Latest(context.Background(), "d1", "sa", 10)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 1 || got[0].ProjectKey != "key" {
		t.Errorf("unexpected rows: %+v", got)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open("sqlite://" + filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	s.Close()

	for _, u := range []string{"sqlite://", "postgres://x/y", ""} {
		if _, err := Open(u); err == nil {
			t.Errorf("Open(%q): expected error", u)
		}
	}
}

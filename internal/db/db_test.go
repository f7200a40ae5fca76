package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
	"github.com/banshee-data/anygrow.bridge/internal/timeutil"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(testNow)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), WithClock(clock))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func reading(temp float64) protocol.SensorReading {
	return protocol.SensorReading{TemperatureC: temp, HumidityPct: 50, CO2ppm: 600, IlluminationLux: 1000}
}

func TestNewDB_AppliesSchemaAndPragmas(t *testing.T) {
	db, _ := newTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode 'wal', got '%s'", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout 5000, got %d", busyTimeout)
	}

	for _, table := range []string{"sensor_data", "alarm_events", "led_timer_profile", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
	if db.Retention() != DefaultRetention {
		t.Errorf("Retention() = %v, want %v", db.Retention(), DefaultRetention)
	}
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if err := db.RecordReading(reading(21)); err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}
	db.Close()

	db, err = NewDB(path)
	if err != nil {
		t.Fatalf("second NewDB failed: %v", err)
	}
	defer db.Close()
	n, err := db.CountReadings()
	if err != nil {
		t.Fatalf("CountReadings failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 reading after reopen, got %d", n)
	}
}

func TestRecordReading_StoresFields(t *testing.T) {
	db, _ := newTestDB(t)

	r := protocol.SensorReading{TemperatureC: 33.3, HumidityPct: 45.6, CO2ppm: 9999, IlluminationLux: 1530}
	if err := db.RecordReading(r); err != nil {
		t.Fatalf("RecordReading failed: %v", err)
	}

	rows, err := db.Readings(24, 100)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.TsMillis != testNow.UnixMilli() {
		t.Errorf("TsMillis = %d, want %d", got.TsMillis, testNow.UnixMilli())
	}
	if want := testNow.Local().Format("2006-01-02T15:04:05"); got.TsText != want {
		t.Errorf("TsText = %q, want %q", got.TsText, want)
	}
	if got.Temperature != 33.3 || got.Humidity != 45.6 || got.Illumination != 1530 {
		t.Errorf("unexpected values: %+v", got)
	}
	// the no-data marker is persisted as received
	if got.CO2 != 9999 {
		t.Errorf("CO2 = %v, want 9999", got.CO2)
	}
	if !got.Time().Equal(testNow) {
		t.Errorf("Time() = %v, want %v", got.Time(), testNow)
	}
}

func TestRecordReading_PrunesBeyondRetention(t *testing.T) {
	db, clock := newTestDB(t)

	clock.Set(testNow.Add(-169 * time.Hour))
	if err := db.RecordReading(reading(10)); err != nil {
		t.Fatalf("RecordReading (old) failed: %v", err)
	}
	clock.Set(testNow)

	if n, _ := db.CountReadings(); n != 1 {
		t.Fatalf("expected old row to be stored until the next append, got %d rows", n)
	}

	if err := db.RecordReading(reading(20)); err != nil {
		t.Fatalf("RecordReading (new) failed: %v", err)
	}

	n, err := db.CountReadings()
	if err != nil {
		t.Fatalf("CountReadings failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected old row pruned, got %d rows", n)
	}
	rows, _ := db.Readings(168, 10)
	if len(rows) != 1 || rows[0].Temperature != 20 {
		t.Errorf("unexpected remaining rows: %+v", rows)
	}
}

func TestRecordReading_PruneFailureKeepsInsert(t *testing.T) {
	db, clock := newTestDB(t)

	clock.Set(testNow.Add(-169 * time.Hour))
	if err := db.RecordReading(reading(10)); err != nil {
		t.Fatalf("RecordReading (old) failed: %v", err)
	}
	clock.Set(testNow)

	if _, err := db.Exec(`CREATE TRIGGER block_prune BEFORE DELETE ON sensor_data
		BEGIN SELECT RAISE(ABORT, 'prune blocked'); END`); err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	if err := db.RecordReading(reading(20)); err != nil {
		t.Fatalf("RecordReading should succeed when pruning fails: %v", err)
	}
	if n, _ := db.CountReadings(); n != 2 {
		t.Errorf("expected new row kept and old row left in place, got %d rows", n)
	}
	rows, _ := db.Readings(1, 10)
	if len(rows) != 1 || rows[0].Temperature != 20 {
		t.Errorf("new reading missing: %+v", rows)
	}
}

func TestRecordReading_KeepsRowsInsideRetention(t *testing.T) {
	db, clock := newTestDB(t)

	clock.Set(testNow.Add(-167 * time.Hour))
	db.RecordReading(reading(10))
	clock.Set(testNow)
	db.RecordReading(reading(20))

	if n, _ := db.CountReadings(); n != 2 {
		t.Errorf("expected both rows kept, got %d", n)
	}
}

func TestWithRetention(t *testing.T) {
	clock := timeutil.NewMockClock(testNow)
	db, err := NewDB(filepath.Join(t.TempDir(), "short.db"), WithClock(clock), WithRetention(time.Hour))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer db.Close()

	db.RecordReading(reading(1))
	clock.Advance(2 * time.Hour)
	db.RecordReading(reading(2))

	if n, _ := db.CountReadings(); n != 1 {
		t.Errorf("expected 1 row with 1h retention, got %d", n)
	}
}

func TestReadings_WindowOrderAndLimit(t *testing.T) {
	db, clock := newTestDB(t)

	// one reading per hour for the last 30 hours, oldest first
	for i := 30; i >= 1; i-- {
		clock.Set(testNow.Add(-time.Duration(i) * time.Hour))
		if err := db.RecordReading(reading(float64(i))); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}
	clock.Set(testNow)

	rows, err := db.Readings(24, 100)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if len(rows) != 24 {
		t.Fatalf("expected 24 rows in a 24h window, got %d", len(rows))
	}
	cutoff := testNow.Add(-24 * time.Hour).UnixMilli()
	for i, r := range rows {
		if r.TsMillis < cutoff {
			t.Errorf("row %d older than 24h: %v", i, r.Time())
		}
		if i > 0 && r.TsMillis < rows[i-1].TsMillis {
			t.Errorf("rows not ascending at %d", i)
		}
	}

	rows, _ = db.Readings(48, 5)
	if len(rows) != 5 {
		t.Fatalf("expected limit 5, got %d", len(rows))
	}
	if rows[0].Temperature != 30 {
		t.Errorf("expected oldest row first, got temperature %v", rows[0].Temperature)
	}
}

func TestReadings_ClampsArguments(t *testing.T) {
	db, clock := newTestDB(t)
	clock.Set(testNow.Add(-30 * time.Minute))
	db.RecordReading(reading(1))
	clock.Set(testNow)

	// hours 0 clamps to 1 and limit 0 clamps to 1
	rows, err := db.Readings(0, 0)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}

	rows, err = db.Readings(-5, 100000)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}
}

func TestClampQuery(t *testing.T) {
	tests := []struct {
		hours, limit         int
		wantHours, wantLimit int
	}{
		{24, 2000, 24, 2000},
		{0, 0, 1, 1},
		{-1, -1, 1, 1},
		{169, 20001, 168, 20000},
		{168, 20000, 168, 20000},
	}
	for _, tt := range tests {
		h, l := ClampQuery(tt.hours, tt.limit)
		if h != tt.wantHours || l != tt.wantLimit {
			t.Errorf("ClampQuery(%d, %d) = %d, %d; want %d, %d", tt.hours, tt.limit, h, l, tt.wantHours, tt.wantLimit)
		}
	}
}

func TestReadings_Empty(t *testing.T) {
	db, _ := newTestDB(t)
	rows, err := db.Readings(24, 10)
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", rows)
	}
}

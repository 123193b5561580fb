package watermark

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := OpenFile(filepath.Join(dir, "state", "last_processed_time.txt"))
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	ss, err := OpenSQLite(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	return map[string]Store{
		DriverFile:   fs,
		DriverSQLite: ss,
		DriverMemory: NewMemory(),
	}
}

func TestStoreContract(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := st.Get(ctx); err != nil || ok {
				t.Fatalf("fresh store: ok=%v err=%v, want absent", ok, err)
			}

			// Reset on an absent watermark is a no-op.
			if err := st.Reset(ctx); err != nil {
				t.Fatalf("reset absent: %v", err)
			}

			first := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)
			if err := st.Set(ctx, first); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, ok, err := st.Get(ctx)
			if err != nil || !ok || !got.Equal(first) {
				t.Fatalf("get = %v, %v, %v; want %v", got, ok, err, first)
			}

			second := first.Add(time.Hour)
			if err := st.Set(ctx, second); err != nil {
				t.Fatalf("set second: %v", err)
			}
			if got, _, _ := st.Get(ctx); !got.Equal(second) {
				t.Fatalf("get = %v, want %v", got, second)
			}

			if err := st.Reset(ctx); err != nil {
				t.Fatalf("reset: %v", err)
			}
			if _, ok, err := st.Get(ctx); err != nil || ok {
				t.Fatalf("after reset: ok=%v err=%v, want absent", ok, err)
			}
			if err := st.Reset(ctx); err != nil {
				t.Fatalf("second reset: %v", err)
			}
		})
	}
}

func TestStoreNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	in := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.Set(ctx, in); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, _, err := st.Get(ctx)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !got.Equal(in) || got.Location() != time.UTC {
				t.Fatalf("got %v, want %v in UTC", got, in)
			}
		})
	}
}

func TestStoreConcurrentReadersSeeWholeValues(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.Set(ctx, base); err != nil {
				t.Fatalf("set: %v", err)
			}

			var wg sync.WaitGroup
			errs := make(chan error, 64)
			for i := 1; i <= 8; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					if err := st.Set(ctx, base.Add(time.Duration(i)*time.Minute)); err != nil {
						errs <- err
					}
				}(i)
				go func() {
					defer wg.Done()
					got, ok, err := st.Get(ctx)
					if err != nil {
						errs <- err
						return
					}
					if !ok || got.Before(base) || got.After(base.Add(8*time.Minute)) {
						t.Errorf("observed partial or foreign value %v (ok=%v)", got, ok)
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Errorf("concurrent access: %v", err)
			}
		})
	}
}

func TestOpenDrivers(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		driver  string
		wantErr bool
	}{
		{"", false},
		{"file", false},
		{"SQLite", false},
		{"memory", false},
		{"redis", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			st, err := Open(tt.driver, filepath.Join(dir, tt.driver+"wm"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(%q) err = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
			if st != nil {
				_ = st.Close()
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-02T03:00:00Z", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), false},
		{"2026-03-02T10:00:00+07:00", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), false},
		{"2026-03-02T03:00:00", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), false},
		{" 2026-03-02T03:00:00\n", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), false},
		{"not a time", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTime(%q) err = %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

package save

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saves.db")
	s, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	blob := []byte(`{"version":1,"quests":{}}`)
	if err := s.Put("slot1", blob); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("slot1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("Get = %q, want %q", got, blob)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("slot1", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("slot1", []byte("second")); err != nil {
		t.Fatalf("overwrite Put: %v", err)
	}
	got, err := s.Get("slot1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("Get = %q after overwrite", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestCorruptBlobTreatedAsMissing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put("slot1", []byte("healthy")); err != nil {
		t.Fatal(err)
	}

	// Flip the stored bytes underneath the checksum.
	if _, err := s.db.Exec("UPDATE save_slots SET blob = ? WHERE slot = ?", []byte("tampered"), "slot1"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get("slot1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("corrupt Get = %v, want ErrNotFound", err)
	}
	// The row is still there; only verification fails.
	if ok, _ := s.Exists("slot1"); !ok {
		t.Error("corrupt slot should still exist")
	}
}

func TestDeleteAndExists(t *testing.T) {
	s := openTestStore(t)

	if ok, err := s.Exists("slot1"); err != nil || ok {
		t.Errorf("Exists before put = %v, %v", ok, err)
	}
	if err := s.Put("slot1", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("slot1"); !ok {
		t.Error("Exists after put should be true")
	}
	if err := s.Delete("slot1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.Exists("slot1"); ok {
		t.Error("Exists after delete should be false")
	}
	// Deleting again is fine.
	if err := s.Delete("slot1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestSlots(t *testing.T) {
	s := openTestStore(t)
	for _, slot := range []string{"beta", "alpha", "gamma"} {
		if err := s.Put(slot, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	slots, err := s.Slots()
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 3 || slots[0] != "alpha" || slots[1] != "beta" || slots[2] != "gamma" {
		t.Errorf("Slots = %v", slots)
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT blob FROM save_slots WHERE slot = ? AND checksum = ?"

	if got := rebind(&SQLiteDialect{}, q); got != q {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}
	want := "SELECT blob FROM save_slots WHERE slot = $1 AND checksum = $2"
	if got := rebind(&PostgresDialect{}, q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestDialectSelection(t *testing.T) {
	if d := NewDialect(DialectPostgres); d.DriverName() != "postgres" {
		t.Errorf("postgres dialect driver = %q", d.DriverName())
	}
	if d := NewDialect(DialectSQLite); d.DriverName() != "sqlite" {
		t.Errorf("sqlite dialect driver = %q", d.DriverName())
	}
	// Unknown types fall back to SQLite.
	if d := NewDialect("mystery"); d.DriverName() != "sqlite" {
		t.Errorf("fallback dialect driver = %q", d.DriverName())
	}
}

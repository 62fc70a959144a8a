package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dawret/knxgw/internal/infrastructure/database"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	db, err := database.Open(database.Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE telegrams (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at      TEXT    NOT NULL,
			source           TEXT    NOT NULL,
			destination      TEXT    NOT NULL,
			destination_kind TEXT    NOT NULL,
			tpci             INTEGER NOT NULL,
			apci             INTEGER,
			payload          BLOB    NOT NULL
		)`)
	if err != nil {
		t.Fatalf("creating telegrams table: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func TestRecordAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	apci := uint8(2)
	tg := &Telegram{
		Source:          "1.1.10",
		Destination:     "1/1/98",
		DestinationKind: "group",
		TPCI:            0,
		APCI:            &apci,
		Payload:         []byte{0x01},
	}
	if err := repo.Record(ctx, tg); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if tg.ID == 0 {
		t.Error("Record did not assign an ID")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 || len(result.Telegrams) != 1 {
		t.Fatalf("List result = %+v, want 1 telegram", result)
	}
	got := result.Telegrams[0]
	if got.Source != tg.Source || got.Destination != tg.Destination {
		t.Errorf("got telegram %+v, want source/destination to match %+v", got, tg)
	}
	if got.APCI == nil || *got.APCI != apci {
		t.Errorf("got APCI %v, want %d", got.APCI, apci)
	}
}

func TestListFiltersByDestinationKind(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, &Telegram{
		Source: "1.1.10", Destination: "1/1/98", DestinationKind: "group",
		Payload: []byte{0x00},
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := repo.Record(ctx, &Telegram{
		Source: "1.1.10", Destination: "1.1.20", DestinationKind: "individual",
		Payload: []byte{0x00},
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	result, err := repo.List(ctx, Filter{DestinationKind: "individual"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 || result.Telegrams[0].DestinationKind != "individual" {
		t.Errorf("List result = %+v, want exactly one individual telegram", result)
	}
}

func TestListSinceFilter(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	result, err := repo.List(ctx, Filter{Since: future})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("List with future Since = %d results, want 0", result.Total)
	}
}

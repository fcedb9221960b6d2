package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/db"
)

// storeFactories runs the same contract against every backend.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			return NewFileStore(t.TempDir(), zerolog.Nop())
		},
		"gorm": func(t *testing.T) Store {
			gdb, err := db.ConnectSQLite(filepath.Join(t.TempDir(), "state.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			if err := db.AutoMigrate(gdb); err != nil {
				t.Fatalf("migrate: %v", err)
			}
			return NewGormStore(gdb)
		},
	}
}

func messageIDs(recs []Record) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.MessageID)
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStore_LoadAllEmpty(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			for _, kind := range Kinds() {
				recs, err := s.LoadAll(context.Background(), kind)
				if err != nil {
					t.Fatalf("LoadAll(%s): %v", kind, err)
				}
				if len(recs) != 0 {
					t.Errorf("LoadAll(%s) = %d records, want 0", kind, len(recs))
				}
			}
		})
	}
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			for _, id := range []string{"30", "10", "20"} {
				if err := s.Append(ctx, KindTicket, Record{MessageID: id, ChannelID: "c" + id, NotificationID: "n" + id}); err != nil {
					t.Fatalf("Append(%s): %v", id, err)
				}
			}
			recs, err := s.LoadAll(ctx, KindTicket)
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			if got := messageIDs(recs); !equalIDs(got, []string{"30", "10", "20"}) {
				t.Errorf("order = %v, want [30 10 20]", got)
			}
			if recs[0].Kind != KindTicket {
				t.Errorf("Kind = %q, want %q", recs[0].Kind, KindTicket)
			}
			if recs[1].NotificationID != "n10" {
				t.Errorf("NotificationID = %q, want n10", recs[1].NotificationID)
			}
		})
	}
}

func TestStore_KindsAreIsolated(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			if err := s.Append(ctx, KindNotification, Record{MessageID: "1", ChannelID: "n", TicketChannelID: "t"}); err != nil {
				t.Fatal(err)
			}
			if err := s.Append(ctx, KindTicket, Record{MessageID: "1", ChannelID: "t", NotificationID: "1"}); err != nil {
				t.Fatalf("same message id in another kind should be allowed: %v", err)
			}
			if err := s.RemoveByHostMessageID(ctx, KindNotification, "1"); err != nil {
				t.Fatal(err)
			}
			recs, _ := s.LoadAll(ctx, KindTicket)
			if len(recs) != 1 {
				t.Errorf("tickets = %d records, want 1", len(recs))
			}
		})
	}
}

func TestStore_DuplicateRejected(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			rec := Record{MessageID: "42", ChannelID: "forms", Label: "Submit", Style: "primary", ChannelPrefix: "support"}
			if err := s.Append(ctx, KindIntakeForm, rec); err != nil {
				t.Fatal(err)
			}
			err := s.Append(ctx, KindIntakeForm, rec)
			if !errors.Is(err, ErrDuplicate) {
				t.Fatalf("err = %v, want ErrDuplicate", err)
			}
			recs, _ := s.LoadAll(ctx, KindIntakeForm)
			if len(recs) != 1 {
				t.Errorf("records = %d, want 1", len(recs))
			}
		})
	}
}

func TestStore_RemoveByHostMessageID(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			for _, id := range []string{"1", "2", "3", "4"} {
				if err := s.Append(ctx, KindNotification, Record{MessageID: id, ChannelID: "n", TicketChannelID: "t" + id}); err != nil {
					t.Fatal(err)
				}
			}
			if err := s.RemoveByHostMessageID(ctx, KindNotification, "2", "4", "missing"); err != nil {
				t.Fatalf("RemoveByHostMessageID: %v", err)
			}
			recs, _ := s.LoadAll(ctx, KindNotification)
			if got := messageIDs(recs); !equalIDs(got, []string{"1", "3"}) {
				t.Errorf("remaining = %v, want [1 3]", got)
			}

			if err := s.RemoveByHostMessageID(ctx, KindNotification); err != nil {
				t.Errorf("empty remove: %v", err)
			}
		})
	}
}

func TestStore_UnknownKind(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			if _, err := s.LoadAll(ctx, Kind("orders")); !errors.Is(err, ErrUnknownKind) {
				t.Errorf("LoadAll err = %v, want ErrUnknownKind", err)
			}
			if err := s.Append(ctx, Kind("orders"), Record{MessageID: "1", ChannelID: "2"}); !errors.Is(err, ErrUnknownKind) {
				t.Errorf("Append err = %v, want ErrUnknownKind", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("news"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

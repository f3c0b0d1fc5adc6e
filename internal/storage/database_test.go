package storage

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/conorfennell/persist/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cards.db"))
	if err != nil {
		t.Fatalf("Open returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBulkInsertAssignsIDsAndDefaults(t *testing.T) {
	db := openTestDB(t)

	created, err := db.BulkInsert([]domain.NewCard{
		{Front: "Hello", Back: "こんにちは", Tags: []string{"basic", "greetings"}},
		{Front: "Goodbye", Back: "さようなら", Tags: []string{"greetings"}},
	})
	if err != nil {
		t.Fatalf("BulkInsert returned an unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Expected 2 created cards, got %d", len(created))
	}
	if created[0].ID == 0 || created[1].ID == 0 || created[0].ID == created[1].ID {
		t.Errorf("Expected distinct non-zero ids, got %d and %d", created[0].ID, created[1].ID)
	}

	got, err := db.Get(created[0].ID)
	if err != nil {
		t.Fatalf("Get returned an unexpected error: %v", err)
	}
	if got.Front != "Hello" || got.Back != "こんにちは" {
		t.Errorf("Unexpected content: %+v", got)
	}
	if !reflect.DeepEqual(got.Tags, []string{"basic", "greetings"}) {
		t.Errorf("Unexpected tags: %v", got.Tags)
	}
	if got.Streak != 0 || got.Answers != (domain.Answers{}) || got.Retired {
		t.Errorf("Expected default review state: %+v", got)
	}
	if got.LastAsked != "" || got.NextReview != "" {
		t.Errorf("Expected empty timestamps on a new card: %+v", got)
	}
	if len(got.Images) != 0 {
		t.Errorf("Expected no images, got %v", got.Images)
	}
}

func TestGetNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Get(999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	db := openTestDB(t)

	created, err := db.BulkInsert([]domain.NewCard{
		{Front: "front", Back: "back", Tags: []string{"old"}},
	})
	if err != nil {
		t.Fatalf("BulkInsert returned an unexpected error: %v", err)
	}

	card := created[0]
	card.Front = "X"
	card.Tags = []string{"new", "tags"}
	card.Streak = 4
	card.Answers = domain.Answers{Correct: 2, Partial: 1, Incorrect: 3}
	card.LastAsked = "2025-06-01T12:00:00Z"
	card.NextReview = "2025-07-01"
	card.Retired = true
	card.Images = []string{"diagram.png"}

	updated, err := db.Upsert(card)
	if err != nil {
		t.Fatalf("Upsert returned an unexpected error: %v", err)
	}
	if updated.Version != card.Version+1 {
		t.Errorf("Expected version bump to %d, got %d", card.Version+1, updated.Version)
	}

	got, err := db.Get(card.ID)
	if err != nil {
		t.Fatalf("Get returned an unexpected error: %v", err)
	}
	if got.Front != "X" || got.Streak != 4 || !got.Retired {
		t.Errorf("Unexpected stored card: %+v", got)
	}
	if got.Answers != card.Answers {
		t.Errorf("Unexpected stored answers: %+v", got.Answers)
	}
	if !reflect.DeepEqual(got.Tags, []string{"new", "tags"}) {
		t.Errorf("Unexpected stored tags: %v", got.Tags)
	}
	if !reflect.DeepEqual(got.Images, []string{"diagram.png"}) {
		t.Errorf("Unexpected stored images: %v", got.Images)
	}
	if got.LastAsked != "2025-06-01T12:00:00Z" || got.NextReview != "2025-07-01" {
		t.Errorf("Unexpected stored timestamps: %+v", got)
	}
}

func TestUpsertStaleVersionConflicts(t *testing.T) {
	db := openTestDB(t)

	created, err := db.BulkInsert([]domain.NewCard{{Front: "f", Back: "b", Tags: nil}})
	if err != nil {
		t.Fatalf("BulkInsert returned an unexpected error: %v", err)
	}

	stale := created[0]
	if _, err := db.Upsert(created[0]); err != nil {
		t.Fatalf("First upsert returned an unexpected error: %v", err)
	}

	if _, err := db.Upsert(stale); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected ErrConflict for stale write, got %v", err)
	}
}

func TestUpsertUnknownCard(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Upsert(domain.Card{ID: 123, Version: 1})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListFiltering(t *testing.T) {
	db := openTestDB(t)

	created, err := db.BulkInsert([]domain.NewCard{
		{Front: "1", Back: "b", Tags: []string{"go", "syntax"}},
		{Front: "2", Back: "b", Tags: []string{"go"}},
		{Front: "3", Back: "b", Tags: []string{"syntax"}},
		{Front: "4", Back: "b", Tags: []string{"go", "syntax"}},
	})
	if err != nil {
		t.Fatalf("BulkInsert returned an unexpected error: %v", err)
	}

	retired := created[3]
	retired.Retired = true
	if _, err := db.Upsert(retired); err != nil {
		t.Fatalf("Upsert returned an unexpected error: %v", err)
	}

	cards, err := db.List(Filter{Tags: []string{"go", "syntax"}})
	if err != nil {
		t.Fatalf("List returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].Front != "1" {
		t.Errorf("Expected only card 1 (superset match, retired excluded), got %+v", cards)
	}

	cards, err = db.List(Filter{Tags: []string{"go", "syntax"}, IncludeRetired: true})
	if err != nil {
		t.Fatalf("List returned an unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Errorf("Expected cards 1 and 4 with retired included, got %+v", cards)
	}

	all, err := db.List(Filter{IncludeRetired: true})
	if err != nil {
		t.Fatalf("List returned an unexpected error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected all 4 cards, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("Expected ascending id order, got %d before %d", all[i-1].ID, all[i].ID)
		}
	}
}

func TestExistsByContent(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.BulkInsert([]domain.NewCard{{Front: "f", Back: "b", Tags: nil}}); err != nil {
		t.Fatalf("BulkInsert returned an unexpected error: %v", err)
	}

	exists, err := db.ExistsByContent("f", "b")
	if err != nil {
		t.Fatalf("ExistsByContent returned an unexpected error: %v", err)
	}
	if !exists {
		t.Errorf("Expected card to exist")
	}

	exists, err = db.ExistsByContent("f", "other")
	if err != nil {
		t.Fatalf("ExistsByContent returned an unexpected error: %v", err)
	}
	if exists {
		t.Errorf("Expected no match for different back")
	}
}

func TestSources(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertSource("/decks/spanish", "local")
	if err != nil {
		t.Fatalf("InsertSource returned an unexpected error: %v", err)
	}

	sources, err := db.GetAllSources()
	if err != nil {
		t.Fatalf("GetAllSources returned an unexpected error: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != id || sources[0].Type != "local" {
		t.Fatalf("Unexpected sources: %+v", sources)
	}
	if sources[0].LastScanned.Valid {
		t.Errorf("Expected no last_scanned before a sync")
	}

	if err := db.UpdateSourceLastScanned(id); err != nil {
		t.Fatalf("UpdateSourceLastScanned returned an unexpected error: %v", err)
	}
	sources, err = db.GetAllSources()
	if err != nil {
		t.Fatalf("GetAllSources returned an unexpected error: %v", err)
	}
	if !sources[0].LastScanned.Valid {
		t.Errorf("Expected last_scanned to be set after update")
	}
}

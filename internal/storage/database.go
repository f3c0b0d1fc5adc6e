package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/persist/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection. It is the sole
// source of truth for cards; the review engine never caches past a session.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ioErr wraps a driver-level failure so callers can match
// domain.ErrStoreUnavailable while keeping the underlying cause.
func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// Filter narrows the card set returned by List.
// Tags uses superset semantics: a card qualifies only if it carries every
// listed tag. Retired cards are excluded unless IncludeRetired is set.
type Filter struct {
	Tags           []string
	IncludeRetired bool
}

const selectCard = `
	SELECT c.id, c.front, c.back, c.last_asked, c.next_review, c.retired,
	       c.streak, c.images, c.version, a.correct, a.partial, a.incorrect
	FROM cards c
	JOIN answers a ON a.id = c.answers_id
`

func scanCard(row interface{ Scan(...any) error }) (domain.Card, error) {
	var c domain.Card
	var images string
	err := row.Scan(
		&c.ID, &c.Front, &c.Back, &c.LastAsked, &c.NextReview, &c.Retired,
		&c.Streak, &images, &c.Version,
		&c.Answers.Correct, &c.Answers.Partial, &c.Answers.Incorrect,
	)
	if err != nil {
		return domain.Card{}, err
	}
	if err := json.Unmarshal([]byte(images), &c.Images); err != nil {
		return domain.Card{}, fmt.Errorf("failed to decode images for card %d: %w", c.ID, err)
	}
	return c, nil
}

// List returns all cards matching the filter, ordered by id ascending.
// That order is the store iteration order the in-order session policy keeps.
func (db *DB) List(f Filter) ([]domain.Card, error) {
	rows, err := db.conn.Query(selectCard + " ORDER BY c.id")
	if err != nil {
		return nil, ioErr("failed to list cards", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, ioErr("failed to scan card row", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("failed to iterate cards", err)
	}

	tagsByCard, err := db.tagsForAllCards()
	if err != nil {
		return nil, err
	}

	var out []domain.Card
	for _, c := range cards {
		c.Tags = tagsByCard[c.ID]
		if c.Tags == nil {
			c.Tags = []string{}
		}
		if c.Retired && !f.IncludeRetired {
			continue
		}
		if !c.HasAllTags(f.Tags) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Get retrieves a single card by id.
func (db *DB) Get(id int64) (domain.Card, error) {
	row := db.conn.QueryRow(selectCard+" WHERE c.id = ?", id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Card{}, fmt.Errorf("card %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Card{}, ioErr(fmt.Sprintf("failed to get card %d", id), err)
	}

	tags, err := db.tagsForCard(id)
	if err != nil {
		return domain.Card{}, err
	}
	c.Tags = tags
	return c, nil
}

// Upsert writes a card back to the store. The write only applies if the
// card's Version still matches the stored row; a mismatch means another
// writer got there first and the caller must re-read before retrying.
// On success the returned card carries the bumped version.
func (db *DB) Upsert(card domain.Card) (domain.Card, error) {
	images, err := json.Marshal(imagesOrEmpty(card.Images))
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to encode images for card %d: %w", card.ID, err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return domain.Card{}, ioErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE cards
		SET front = ?, back = ?, last_asked = ?, next_review = ?,
		    retired = ?, streak = ?, images = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		card.Front, card.Back, card.LastAsked, card.NextReview,
		card.Retired, card.Streak, string(images),
		card.ID, card.Version,
	)
	if err != nil {
		return domain.Card{}, ioErr(fmt.Sprintf("failed to update card %d", card.ID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Card{}, ioErr("failed to read rows affected", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRow("SELECT COUNT(1) FROM cards WHERE id = ?", card.ID).Scan(&exists); err != nil {
			return domain.Card{}, ioErr(fmt.Sprintf("failed to check card %d", card.ID), err)
		}
		if exists == 0 {
			return domain.Card{}, fmt.Errorf("card %d: %w", card.ID, domain.ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("card %d: %w", card.ID, domain.ErrConflict)
	}

	if _, err := tx.Exec(`
		UPDATE answers SET correct = ?, partial = ?, incorrect = ?
		WHERE id = (SELECT answers_id FROM cards WHERE id = ?)
	`, card.Answers.Correct, card.Answers.Partial, card.Answers.Incorrect, card.ID); err != nil {
		return domain.Card{}, ioErr(fmt.Sprintf("failed to update answers for card %d", card.ID), err)
	}

	if err := replaceTags(tx, card.ID, card.Tags); err != nil {
		return domain.Card{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Card{}, ioErr("failed to commit card update", err)
	}

	card.Version++
	card.Images = imagesOrEmpty(card.Images)
	card.Tags = tagsOrEmpty(card.Tags)
	return card, nil
}

// BulkInsert creates new cards with default review state and assigns ids.
// All cards are created in one transaction: either all land, or none do.
func (db *DB) BulkInsert(newCards []domain.NewCard) ([]domain.Card, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, ioErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	created := make([]domain.Card, 0, len(newCards))
	for _, nc := range newCards {
		res, err := tx.Exec("INSERT INTO answers (correct, partial, incorrect) VALUES (0, 0, 0)")
		if err != nil {
			return nil, ioErr("failed to insert answers row", err)
		}
		answersID, err := res.LastInsertId()
		if err != nil {
			return nil, ioErr("failed to get answers id", err)
		}

		res, err = tx.Exec(`
			INSERT INTO cards (front, back, answers_id)
			VALUES (?, ?, ?)
		`, nc.Front, nc.Back, answersID)
		if err != nil {
			return nil, ioErr(fmt.Sprintf("failed to insert card %q", nc.Front), err)
		}
		cardID, err := res.LastInsertId()
		if err != nil {
			return nil, ioErr("failed to get card id", err)
		}

		if err := replaceTags(tx, cardID, nc.Tags); err != nil {
			return nil, err
		}

		created = append(created, domain.Card{
			ID:      cardID,
			Front:   nc.Front,
			Back:    nc.Back,
			Tags:    tagsOrEmpty(nc.Tags),
			Images:  []string{},
			Version: 1,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, ioErr("failed to commit bulk insert", err)
	}
	return created, nil
}

// ExistsByContent reports whether a card with exactly this front and back is
// already stored. Deck sync uses it to keep imports idempotent.
func (db *DB) ExistsByContent(front, back string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(1) FROM cards WHERE front = ? AND back = ?", front, back).Scan(&n)
	if err != nil {
		return false, ioErr("failed to check card content", err)
	}
	return n > 0, nil
}

// replaceTags rewrites the card's tag links inside the caller's transaction.
func replaceTags(tx *sql.Tx, cardID int64, tags []string) error {
	if _, err := tx.Exec("DELETE FROM card_tags WHERE card_id = ?", cardID); err != nil {
		return ioErr(fmt.Sprintf("failed to clear tags for card %d", cardID), err)
	}
	for _, tag := range tags {
		if _, err := tx.Exec("INSERT OR IGNORE INTO tags (name) VALUES (?)", tag); err != nil {
			return ioErr(fmt.Sprintf("failed to insert tag %q", tag), err)
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO card_tags (card_id, tag_id)
			VALUES (?, (SELECT id FROM tags WHERE name = ?))
		`, cardID, tag); err != nil {
			return ioErr(fmt.Sprintf("failed to link tag %q to card %d", tag, cardID), err)
		}
	}
	return nil
}

func (db *DB) tagsForCard(cardID int64) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT t.name FROM tags t
		JOIN card_tags ct ON ct.tag_id = t.id
		WHERE ct.card_id = ?
		ORDER BY t.name
	`, cardID)
	if err != nil {
		return nil, ioErr(fmt.Sprintf("failed to get tags for card %d", cardID), err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ioErr("failed to scan tag row", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func (db *DB) tagsForAllCards() (map[int64][]string, error) {
	rows, err := db.conn.Query(`
		SELECT ct.card_id, t.name FROM tags t
		JOIN card_tags ct ON ct.tag_id = t.id
	`)
	if err != nil {
		return nil, ioErr("failed to get card tags", err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var cardID int64
		var name string
		if err := rows.Scan(&cardID, &name); err != nil {
			return nil, ioErr("failed to scan card tag row", err)
		}
		out[cardID] = append(out[cardID], name)
	}
	for _, tags := range out {
		sort.Strings(tags)
	}
	return out, rows.Err()
}

func imagesOrEmpty(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Source represents a deck source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource registers a new deck source and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, ioErr(fmt.Sprintf("failed to insert source %s", path), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ioErr(fmt.Sprintf("failed to get id for source %s", path), err)
	}
	return id, nil
}

// GetAllSources retrieves all registered deck sources.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query("SELECT id, path, type, last_scanned FROM sources ORDER BY id")
	if err != nil {
		return nil, ioErr("failed to get sources", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, ioErr("failed to scan source row", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned stamps the last_scanned time for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	if _, err := db.conn.Exec(`
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`, time.Now(), sourceID); err != nil {
		return ioErr(fmt.Sprintf("failed to update last scanned for source %d", sourceID), err)
	}
	return nil
}

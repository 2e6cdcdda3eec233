/*
Package catalog implements the artwork catalog as a SQLite database.

The schema follows the artworks table kept by the scraping agents. Only the
columns needed to select and fetch images are stored; everything else in an
imported record is ignored.
*/
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/ledgallery/ledgallery"
	_ "github.com/mattn/go-sqlite3" // register driver
	"github.com/pkg/errors"
)

// DB is a SQLite backed catalog. It implements ledgallery.Catalog.
type DB struct {
	db *sql.DB
}

// Open opens, creating if needed, the catalog database at file.
func Open(file string) (*DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS artworks (seq INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT NOT NULL UNIQUE, media_type TEXT NOT NULL DEFAULT 'image', source TEXT NOT NULL DEFAULT '', creator_name TEXT NOT NULL DEFAULT '', url TEXT NOT NULL DEFAULT '', title TEXT NOT NULL DEFAULT '', viewed BOOLEAN NOT NULL DEFAULT 0, entry_created_at TEXT)"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create artworks table")
	}

	if _, err = db.Exec("CREATE INDEX IF NOT EXISTS idx_viewed ON artworks(viewed)"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create viewed index")
	}

	return &DB{
		db: db,
	}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.db.Close()
}

// Record is one artwork as exported by the scraping agents.
type Record struct {
	ID             string `json:"id"`
	MediaType      string `json:"media_type"`
	Source         string `json:"source"`
	CreatorName    string `json:"creator_name"`
	URL            string `json:"url"`
	Title          string `json:"title"`
	Viewed         bool   `json:"viewed"`
	EntryCreatedAt string `json:"entry_created_at"`
}

// ImportJSON loads a JSON array of records from file. Records are upserted
// by id so re-importing an export updates rather than duplicates. It
// returns the number of records read.
func (db *DB) ImportJSON(file string) (int, error) {
	b, err := ioutil.ReadFile(file)
	if err != nil {
		return 0, err
	}

	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return 0, errors.Wrapf(err, "parse %s", file)
	}

	return len(records), db.Add(records...)
}

// Add upserts records in a single transaction.
func (db *DB) Add(records ...Record) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO artworks (id, media_type, source, creator_name, url, title, viewed, entry_created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET media_type = excluded.media_type, source = excluded.source, creator_name = excluded.creator_name, url = excluded.url, title = excluded.title, viewed = excluded.viewed, entry_created_at = excluded.entry_created_at")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			tx.Rollback()
			return errors.New("record without id")
		}

		mediaType := r.MediaType
		if mediaType == "" {
			mediaType = "image"
		}

		var created sql.NullString
		if r.EntryCreatedAt != "" {
			created.String = r.EntryCreatedAt
			created.Valid = true
		}

		if _, err := stmt.Exec(r.ID, mediaType, r.Source, r.CreatorName, r.URL, r.Title, r.Viewed, created); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert %s", r.ID)
		}
	}

	return tx.Commit()
}

// Count returns the number of artworks in the catalog.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM artworks").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Images returns the artworks matching q in the order they were first
// imported.
func (db *DB) Images(ctx context.Context, q ledgallery.Query) ([]ledgallery.SourceImage, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.Unviewed {
		where = append(where, "viewed = 0")
	}
	if q.MediaType != "" {
		where = append(where, "media_type = ?")
		args = append(args, q.MediaType)
	}

	query := "SELECT id, url, title, creator_name FROM artworks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []ledgallery.SourceImage
	for rows.Next() {
		var img ledgallery.SourceImage
		if err := rows.Scan(&img.ID, &img.URL, &img.Title, &img.Creator); err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	return images, rows.Err()
}

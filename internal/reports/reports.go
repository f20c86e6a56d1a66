// Package reports accumulates row-level import errors per job and turns them
// into a downloadable CSV artifact. Errors are staged in badger rather than
// memory because a job's failure count is unbounded, while the API response
// only previews the first hundred.
package reports

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/yourorg/form-imports/internal/types"
)

// Store stages RowErrors keyed by job. Entries expire after TTL so abandoned
// jobs do not pin disk space.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the staging store at dir; an empty dir uses an in-memory
// database (tests).
func Open(dir string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(jobID string, seq int) []byte {
	return []byte("report/" + jobID + "/" + fmt.Sprintf("%010d", seq))
}

// Append stages one row error under the job. seq fixes collection order.
func (s *Store) Append(jobID string, seq int, e types.RowError) error {
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key(jobID, seq), val)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Collect returns all staged errors for the job in append order.
func (s *Store) Collect(jobID string) ([]types.RowError, error) {
	prefix := []byte("report/" + jobID + "/")
	var out []types.RowError
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e types.RowError
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Purge removes a job's staged errors, normally after the report is built.
func (s *Store) Purge(jobID string) error {
	prefix := []byte("report/" + jobID + "/")
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Report is the downloadable artifact for one job's failures.
type Report struct {
	FileName      string `json:"fileName"`
	ContentBase64 string `json:"content"`
	RowCount      int    `json:"rowCount"`
	Raw           []byte `json:"-"`
}

// Build renders the errors as a CSV, base64-encoded for transport. The
// filename carries the form name and a timestamp.
func Build(formName string, errs []types.RowError, now time.Time) Report {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Row", "Field", "Field Type", "Value", "Error", "Suggestion"})
	for _, e := range errs {
		_ = w.Write([]string{
			strconv.Itoa(e.Row), e.FieldLabel, e.FieldType, e.Value, e.Message, e.Suggestion,
		})
	}
	w.Flush()

	name := fmt.Sprintf("%s-import-errors-%s.csv", slug(formName), now.UTC().Format("20060102-150405"))
	return Report{
		FileName:      name,
		ContentBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		RowCount:      len(errs),
		Raw:           buf.Bytes(),
	}
}

func slug(s string) string {
	out := make([]rune, 0, len(s))
	dash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			dash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
			dash = false
		default:
			if !dash {
				out = append(out, '-')
				dash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return "form"
	}
	return string(out)
}

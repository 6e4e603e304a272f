// Package history keeps a persistent record of pipeline outcomes.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alanbriolat/video-relay/pipeline"
)

var ErrNotFound = errors.New("record not found")

var Buckets = struct {
	Metadata []byte
	Records  []byte
}{
	Metadata: []byte("__metadata__"),
	Records:  []byte("records"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

// Record is the stored summary of one pipeline invocation.
type Record struct {
	RequestID   string    `json:"request_id"`
	Locator     string    `json:"locator"`
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	Path        string    `json:"path,omitempty"`
	Artifact    string    `json:"artifact,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Attempts    int       `json:"attempts"`
	Digest      string    `json:"digest,omitempty"`
	CleanupErr  string    `json:"cleanup_error,omitempty"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
}

// NewRecord summarises the outcome of req.
func NewRecord(req pipeline.Request, outcome pipeline.Outcome, started, finished time.Time) Record {
	r := Record{
		RequestID:   string(req.ID),
		Locator:     req.Locator,
		Kind:        string(req.Kind),
		Destination: req.Destination.String(),
		Outcome:     outcome.Kind.String(),
		Reason:      string(outcome.Reason),
		Attempts:    outcome.Attempts,
		Started:     started,
		Finished:    finished,
	}
	if outcome.Err != nil {
		r.Error = outcome.Err.Error()
	}
	if outcome.CleanupErr != nil {
		r.CleanupErr = outcome.CleanupErr.Error()
	}
	if outcome.IsSuccess() {
		r.Path = outcome.Artifact.Path
		r.Artifact = outcome.Artifact.Kind.String()
		r.Size = outcome.Artifact.Size
	}
	return r
}

type Store interface {
	Close() error
	Get(requestID string) (Record, error)
	List() ([]Record, error)
	Put(record Record) error
}

type store struct {
	*bbolt.DB
}

func Open(path string) (_ Store, err error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %v: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Records); err != nil {
			return err
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes != nil {
			if err = json.Unmarshal(versionBytes, &version); err != nil {
				return err
			}
		}
		if version > currentVersion {
			return fmt.Errorf("history version %d is newer than supported version %d", version, currentVersion)
		}

		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise history: %w", err)
	}
	return &store{db}, nil
}

func (s *store) Get(requestID string) (record Record, err error) {
	err = s.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(Buckets.Records).Get([]byte(requestID))
		if data == nil {
			return fmt.Errorf("%w: %v", ErrNotFound, requestID)
		}
		return json.Unmarshal(data, &record)
	})
	return record, err
}

// List returns every record, oldest first.
func (s *store) List() (records []Record, err error) {
	err = s.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Records).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Started.Before(records[j].Started)
	})
	return records, nil
}

func (s *store) Put(record Record) error {
	if record.RequestID == "" {
		return fmt.Errorf("record has no request ID")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Records).Put([]byte(record.RequestID), data)
	})
}

// Package transaction records tool installs: an exclusive install lock so two
// toolkeeper processes never write the managed bin directory at once, and a
// journal of install attempts written atomically to the data directory.
package transaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the state of an install attempt.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

const journalPrefix = "txn-install-"

// InstallTxn is one journaled install attempt.
type InstallTxn struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`

	Asset     string `json:"asset"`
	URL       string `json:"url"`
	Path      string `json:"path,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Signed    bool   `json:"signed"`
	LastError string `json:"last_error,omitempty"`
}

// New creates a pending install record for asset.
func New(asset, url string) *InstallTxn {
	return &InstallTxn{
		Version:   1,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		State:     StatePending,
		Asset:     asset,
		URL:       url,
	}
}

// Complete marks the install as completed at path.
func (t *InstallTxn) Complete(path, digest string, signed bool) {
	t.State = StateCompleted
	t.Path = path
	t.Digest = digest
	t.Signed = signed
	t.LastError = ""
}

// Fail marks the install as failed with err.
func (t *InstallTxn) Fail(err error) {
	t.State = StateFailed
	if err != nil {
		t.LastError = err.Error()
	}
}

// FileName returns the journal file name of t.
func (t *InstallTxn) FileName() string {
	return journalPrefix + t.ID + ".json"
}

// Save writes the record to dir using write-then-rename.
func (t *InstallTxn) Save(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	finalPath := filepath.Join(dir, t.FileName())
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal install record: %w", err)
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary install record: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename install record: %w", err)
	}

	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}

// Load reads one install record.
func Load(path string) (*InstallTxn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read install record: %w", err)
	}

	var txn InstallTxn
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, fmt.Errorf("unmarshal install record: %w", err)
	}
	return &txn, nil
}

// List returns every install record in dir, oldest first. Unreadable
// records are skipped.
func List(dir string) ([]*InstallTxn, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal directory: %w", err)
	}

	var txns []*InstallTxn
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, journalPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		txn, err := Load(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		txns = append(txns, txn)
	}

	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Timestamp.Before(txns[j].Timestamp)
	})
	return txns, nil
}

// LastCompleted returns the newest completed install in dir, or nil.
func LastCompleted(dir string) (*InstallTxn, error) {
	txns, err := List(dir)
	if err != nil {
		return nil, err
	}
	for i := len(txns) - 1; i >= 0; i-- {
		if txns[i].State == StateCompleted {
			return txns[i], nil
		}
	}
	return nil, nil
}

package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
)

// Ensure CorpusRepository implements repository.CorpusRepository
var _ repository.CorpusRepository = (*CorpusRepository)(nil)

// document is the on-disk shape of a record, shared with LangChain's
// Document serialization ({"page_content", "metadata"}).
type document struct {
	PageContent string            `json:"page_content"`
	Metadata    map[string]string `json:"metadata"`
}

// CorpusRepository stores the whole corpus as a single JSON array.
// Every Append rewrites the file through a temp file and an atomic rename,
// holding the write lock for the full read-modify-write cycle. The lock is
// both an in-process RWMutex and an flock on <path>.lock, so separate
// processes writing the same file do not lose each other's appends.
type CorpusRepository struct {
	path     string
	lockPath string
	mu       sync.RWMutex
}

// NewCorpusRepository creates a JSON file corpus at path. The file is created
// on first Append.
func NewCorpusRepository(path string) *CorpusRepository {
	return &CorpusRepository{path: path, lockPath: path + ".lock"}
}

// Path returns the corpus file location
func (r *CorpusRepository) Path() string {
	return r.path
}

// Load returns every record in insertion order
func (r *CorpusRepository) Load(ctx context.Context) ([]models.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	lock, err := acquireLock(ctx, r.lockPath, false)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	return r.read()
}

// Contains reports whether the ticket is already in the corpus
func (r *CorpusRepository) Contains(ctx context.Context, ticketID string) (bool, error) {
	records, err := r.Load(ctx)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.ID == ticketID {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of records
func (r *CorpusRepository) Count(ctx context.Context) (int, error) {
	records, err := r.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Append adds the record and rewrites the corpus file
func (r *CorpusRepository) Append(ctx context.Context, record models.TicketRecord) (bool, error) {
	if record.ID == "" {
		return false, fmt.Errorf("append corpus record: empty ticket id")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lock, err := acquireLock(ctx, r.lockPath, true)
	if err != nil {
		return false, err
	}
	defer lock.release()

	records, err := r.read()
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.ID == record.ID {
			return false, nil
		}
	}

	records = append(records, record)
	if err := r.write(records); err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op; the file is not held open between calls
func (r *CorpusRepository) Close() error {
	return nil
}

func (r *CorpusRepository) read() ([]models.TicketRecord, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.TicketRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", r.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.TicketRecord{}, nil
	}

	var docs []document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode corpus %s: %w", r.path, err)
	}

	records := make([]models.TicketRecord, 0, len(docs))
	for i, doc := range docs {
		id := doc.Metadata[models.MetaTicketID]
		if id == "" {
			return nil, fmt.Errorf("decode corpus %s: document %d has no %s", r.path, i, models.MetaTicketID)
		}
		records = append(records, models.TicketRecord{
			ID:       id,
			Text:     doc.PageContent,
			Metadata: doc.Metadata,
		})
	}
	return records, nil
}

func (r *CorpusRepository) write(records []models.TicketRecord) error {
	docs := make([]document, len(records))
	for i, rec := range records {
		rec = rec.Clone()
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string, 1)
		}
		rec.Metadata[models.MetaTicketID] = rec.ID
		docs[i] = document{PageContent: rec.Text, Metadata: rec.Metadata}
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create corpus temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write corpus temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync corpus temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close corpus temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace corpus %s: %w", r.path, err)
	}
	committed = true
	return nil
}

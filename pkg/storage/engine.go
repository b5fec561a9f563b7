// Package storage implements the document store: pages on disk chained
// into documents, a write-ahead log ahead of every mutation, a primary
// path index, and a full-text index, wired together behind a
// single-writer-lock/reader-epoch concurrency model. A single Engine
// owns all of it; there is no separate per-table construct, since this
// engine has one fixed document type rather than an arbitrary relational
// schema.
package storage

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kotadb/kotadb/pkg/btree"
	"github.com/kotadb/kotadb/pkg/config"
	kerrors "github.com/kotadb/kotadb/pkg/errors"
	"github.com/kotadb/kotadb/pkg/page"
	"github.com/kotadb/kotadb/pkg/trigram"
	"github.com/kotadb/kotadb/pkg/types"
	"github.com/kotadb/kotadb/pkg/wal"
)

// Engine is the embedded storage engine: one page file, one WAL, one
// primary index, one full-text index, all rooted under a single data
// directory.
type Engine struct {
	cfg config.Config

	writeMu sync.Mutex // serializes every mutation; reads never take it

	pages       *page.Manager
	walWriter   *wal.WALWriter
	walPath     string
	lsn         *LSNTracker
	checkpoints *CheckpointManager

	index    *btree.BPlusTree[types.DocumentId]
	fulltext *trigram.Index

	metaMu    sync.RWMutex
	headPages map[types.DocumentId]page.PageID
	pathByID  map[types.DocumentId]types.Path

	epoch atomic.Uint64

	checkpointStop chan struct{}
	checkpointDone chan struct{}

	closeOnce sync.Once
}

// Open opens the data directory at cfg.DataDir, creating it if absent, and
// recovers whatever checkpoint and WAL tail are there.
func Open(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, kerrors.NewIoFatal("engine.mkdir", err)
	}

	pages, err := page.Open(filepath.Join(cfg.DataDir, "data.pages"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:            cfg,
		pages:          pages,
		checkpoints:    NewCheckpointManager(cfg.DataDir),
		index:          btree.NewUniqueTree[types.DocumentId](cfg.BTreeFanout),
		fulltext:       trigram.NewIndex(cfg.TrigramScoreThresholdShort, cfg.TrigramScoreThresholdLong),
		headPages:      make(map[types.DocumentId]page.PageID),
		pathByID:       make(map[types.DocumentId]types.Path),
		walPath:        filepath.Join(cfg.DataDir, "wal.log"),
		checkpointStop: make(chan struct{}),
		checkpointDone: make(chan struct{}),
	}

	checkpointLSN, err := e.loadCheckpoint()
	if err != nil {
		pages.Close()
		return nil, err
	}

	lastLSN, err := e.replayWAL(checkpointLSN)
	if err != nil {
		pages.Close()
		return nil, err
	}
	e.lsn = NewLSNTracker(lastLSN)

	opts := wal.DefaultOptions()
	opts.DirPath = cfg.DataDir
	if cfg.FsyncOnCommit {
		opts.SyncPolicy = wal.SyncEveryWrite
	} else {
		opts.SyncPolicy = wal.SyncInterval
	}
	writer, err := wal.NewWALWriter(e.walPath, opts)
	if err != nil {
		pages.Close()
		return nil, err
	}
	e.walWriter = writer

	go e.runCheckpointLoop()

	return e, nil
}

// loadCheckpoint rebuilds the primary index, the headPages/pathByID maps,
// and the full-text index from the most recent checkpoint manifest, and
// returns the LSN it was taken at (0 if there is none).
func (e *Engine) loadCheckpoint() (uint64, error) {
	entries, lsn, ok, err := e.checkpoints.LoadLatest()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	for _, entry := range entries {
		path, err := types.NewPath(entry.Path)
		if err != nil {
			return 0, kerrors.NewCorruption("checkpoint", "invalid path in manifest: "+err.Error())
		}
		docID, err := types.DocumentIdFromBytes(entry.DocID)
		if err != nil {
			return 0, kerrors.NewCorruption("checkpoint", "invalid document id in manifest")
		}
		headPage := page.PageID(entry.HeadPage)

		if err := e.index.Insert(path, docID); err != nil {
			return 0, err
		}
		e.headPages[docID] = headPage
		e.pathByID[docID] = path

		if err := e.indexContentFrom(headPage, docID, false); err != nil {
			return 0, err
		}
	}
	return lsn, nil
}

// indexContentFrom reads a document's page chain and feeds its searchable
// text into the full-text index. update controls whether this is a fresh
// InsertWithContent or an UpdateWithContent over an already-indexed id.
func (e *Engine) indexContentFrom(head page.PageID, id types.DocumentId, update bool) error {
	raw, err := e.pages.ReadChain(head)
	if err != nil {
		return err
	}
	wireDoc, err := decodeDocument(raw)
	if err != nil {
		return err
	}
	doc, err := fromWire(wireDoc, time.Now())
	if err != nil {
		return err
	}
	if update {
		return e.fulltext.UpdateWithContent(id, doc.searchableText())
	}
	return e.fulltext.InsertWithContent(id, doc.searchableText())
}

// replayWAL applies every committed transaction whose LSN is greater than
// checkpointLSN, in order, stopping at the first malformed record (the
// expected shape of a torn write after a crash) rather than erroring out.
// It returns the highest LSN actually observed, committed or not, so the
// tracker resumes numbering past it.
func (e *Engine) replayWAL(checkpointLSN uint64) (uint64, error) {
	if _, err := os.Stat(e.walPath); os.IsNotExist(err) {
		return checkpointLSN, nil
	}

	reader, err := wal.NewWALReader(e.walPath)
	if err != nil {
		return checkpointLSN, err
	}
	defer reader.Close()

	type pendingPut struct {
		docID    [16]byte
		headPage uint64
		path     string
	}
	pendingPuts := make(map[uint64]pendingPut)
	pendingDeletes := make(map[uint64][16]byte)

	maxLSN := checkpointLSN
	for {
		entry, err := reader.ReadEntry()
		if err != nil {
			break // EOF or torn tail: stop replay, discard any uncommitted trailer
		}
		if entry.Header.LSN > maxLSN {
			maxLSN = entry.Header.LSN
		}
		if entry.Header.LSN <= checkpointLSN {
			continue // already reflected in the checkpoint manifest
		}

		switch entry.Header.EntryType {
		case wal.EntryPut:
			rec, decErr := wal.DecodePutRecord(entry.Payload)
			if decErr != nil {
				return maxLSN, nil
			}
			pendingPuts[rec.TxnID] = pendingPut{docID: rec.DocID, headPage: rec.HeadPage, path: rec.Path}
		case wal.EntryDelete:
			rec, decErr := wal.DecodeDeleteRecord(entry.Payload)
			if decErr != nil {
				return maxLSN, nil
			}
			pendingDeletes[rec.TxnID] = rec.DocID
		case wal.EntryCommit:
			rec, decErr := wal.DecodeCommitRecord(entry.Payload)
			if decErr != nil {
				return maxLSN, nil
			}
			if put, ok := pendingPuts[rec.TxnID]; ok {
				if err := e.applyRecoveredPut(put.path, put.docID, put.headPage); err != nil {
					return maxLSN, err
				}
				delete(pendingPuts, rec.TxnID)
			}
			if docID, ok := pendingDeletes[rec.TxnID]; ok {
				e.applyRecoveredDelete(docID)
				delete(pendingDeletes, rec.TxnID)
			}
		}
	}
	return maxLSN, nil
}

func (e *Engine) applyRecoveredPut(rawPath string, rawID [16]byte, rawHead uint64) error {
	path, err := types.NewPath(rawPath)
	if err != nil {
		return kerrors.NewCorruption("wal", "invalid path in put record: "+err.Error())
	}
	docID, err := types.DocumentIdFromBytes(rawID)
	if err != nil {
		return kerrors.NewCorruption("wal", "invalid document id in put record")
	}
	headPage := page.PageID(rawHead)

	_, existed := e.headPages[docID]
	if err := e.index.Replace(path, docID); err != nil {
		return err
	}
	e.headPages[docID] = headPage
	e.pathByID[docID] = path
	return e.indexContentFrom(headPage, docID, existed)
}

func (e *Engine) applyRecoveredDelete(rawID [16]byte) {
	docID, err := types.DocumentIdFromBytes(rawID)
	if err != nil {
		return
	}
	if path, ok := e.pathByID[docID]; ok {
		e.index.Delete(path)
	}
	delete(e.headPages, docID)
	delete(e.pathByID, docID)
	e.fulltext.Delete(docID)
}

// Insert creates a new document at path, failing AlreadyExists if path
// already resolves to a document. Use Update to overwrite one.
func (e *Engine) Insert(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, existed := e.index.Get(path); existed {
		return types.DocumentId{}, kerrors.NewAlreadyExists("document", path)
	}
	docID, err := types.NewDocumentId()
	if err != nil {
		return types.DocumentId{}, err
	}

	now := time.Now()
	return e.persistLocked(path, docID, title, tags, content, metadata, now, now, 0, false)
}

// Update overwrites the document at path with new title, tags, content, and
// metadata, preserving CreatedAt and bumping ModifiedAt. Fails NotFound if
// path is absent.
func (e *Engine) Update(path types.Path, title types.Title, tags []types.Tag, content string, metadata map[string]any) (types.DocumentId, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	docID, existed := e.index.Get(path)
	if !existed {
		return types.DocumentId{}, kerrors.NewNotFound("document", path)
	}

	now := time.Now()
	createdAt := now
	if prior, err := e.hydrateLocked(docID); err == nil {
		createdAt = prior.CreatedAt.Time()
	}
	e.metaMu.RLock()
	oldHead, hadOldHead := e.headPages[docID]
	e.metaMu.RUnlock()

	return e.persistLocked(path, docID, title, tags, content, metadata, createdAt, now, oldHead, hadOldHead)
}

// persistLocked writes a document version to pages, logs it to the WAL,
// republishes the primary index entry and full-text postings, and frees the
// prior page chain if this is an overwrite. Callers must hold writeMu.
func (e *Engine) persistLocked(path types.Path, docID types.DocumentId, title types.Title, tags []types.Tag, content string, metadata map[string]any, createdAt, modifiedAt time.Time, oldHead page.PageID, hadOldHead bool) (types.DocumentId, error) {
	if content == "" {
		return types.DocumentId{}, kerrors.NewInvalidInput("content", "must not be empty")
	}
	size, err := types.NewNonZeroSize(int64(len(content)))
	if err != nil {
		return types.DocumentId{}, err
	}

	createdTs, err := types.NewTimestamp(createdAt.Unix(), modifiedAt.Add(time.Second))
	if err != nil {
		return types.DocumentId{}, err
	}
	modifiedTs, err := types.NewTimestamp(modifiedAt.Unix(), modifiedAt.Add(time.Second))
	if err != nil {
		return types.DocumentId{}, err
	}

	doc := Document{
		ID:         docID,
		Path:       path,
		Title:      title,
		Tags:       tags,
		Content:    content,
		Size:       size,
		CreatedAt:  createdTs,
		ModifiedAt: modifiedTs,
		Metadata:   metadata,
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return types.DocumentId{}, err
	}
	headPage, err := e.pages.WriteChain(page.KindDocHead, data)
	if err != nil {
		return types.DocumentId{}, err
	}
	if e.cfg.FsyncOnCommit {
		if err := e.pages.Sync(); err != nil {
			return types.DocumentId{}, err
		}
	}

	txnID := e.lsn.Next()
	if err := e.walWriter.WriteEntry(wal.NewEntry(wal.EntryBegin, e.lsn.Next(), wal.BeginRecord{TxnID: txnID}.Encode())); err != nil {
		return types.DocumentId{}, err
	}
	putRec := wal.PutRecord{TxnID: txnID, DocID: docID.Bytes(), HeadPage: uint64(headPage), Path: path.String()}
	if err := e.walWriter.WriteEntry(wal.NewEntry(wal.EntryPut, e.lsn.Next(), putRec.Encode())); err != nil {
		return types.DocumentId{}, err
	}
	if err := e.walWriter.WriteEntry(wal.NewEntry(wal.EntryCommit, e.lsn.Next(), wal.CommitRecord{TxnID: txnID}.Encode())); err != nil {
		return types.DocumentId{}, err
	}
	if e.cfg.FsyncOnCommit {
		if err := e.walWriter.Sync(); err != nil {
			return types.DocumentId{}, err
		}
	}

	if err := e.index.Replace(path, docID); err != nil {
		return types.DocumentId{}, err
	}
	e.metaMu.Lock()
	e.headPages[docID] = headPage
	e.pathByID[docID] = path
	e.metaMu.Unlock()

	if hadOldHead {
		if err := e.fulltext.UpdateWithContent(docID, doc.searchableText()); err != nil {
			return types.DocumentId{}, err
		}
	} else {
		if err := e.fulltext.InsertWithContent(docID, doc.searchableText()); err != nil {
			return types.DocumentId{}, err
		}
	}

	if hadOldHead && oldHead != headPage {
		e.pages.FreeChain(oldHead)
	}

	e.epoch.Add(1)
	return docID, nil
}

// Get returns the document stored at path.
func (e *Engine) Get(path types.Path) (Document, error) {
	docID, ok := e.index.Get(path)
	if !ok {
		return Document{}, kerrors.NewNotFound("document", path)
	}
	return e.hydrateLocked(docID)
}

// GetByID returns the document with the given id.
func (e *Engine) GetByID(id types.DocumentId) (Document, error) {
	return e.hydrateLocked(id)
}

func (e *Engine) hydrateLocked(id types.DocumentId) (Document, error) {
	e.metaMu.RLock()
	headPage, ok := e.headPages[id]
	e.metaMu.RUnlock()
	if !ok {
		return Document{}, kerrors.NewNotFound("document", id)
	}
	raw, err := e.pages.ReadChain(headPage)
	if err != nil {
		return Document{}, err
	}
	wireDoc, err := decodeDocument(raw)
	if err != nil {
		return Document{}, err
	}
	return fromWire(wireDoc, time.Now())
}

// Delete removes the document stored at path. It is idempotent: deleting an
// already-absent path reports (false, nil) rather than an error.
func (e *Engine) Delete(path types.Path) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	docID, ok := e.index.Get(path)
	if !ok {
		return false, nil
	}

	txnID := e.lsn.Next()
	if err := e.walWriter.WriteEntry(wal.NewEntry(wal.EntryBegin, e.lsn.Next(), wal.BeginRecord{TxnID: txnID}.Encode())); err != nil {
		return false, err
	}
	delRec := wal.DeleteRecord{TxnID: txnID, DocID: docID.Bytes()}
	if err := e.walWriter.WriteEntry(wal.NewEntry(wal.EntryDelete, e.lsn.Next(), delRec.Encode())); err != nil {
		return false, err
	}
	if err := e.walWriter.WriteEntry(wal.NewEntry(wal.EntryCommit, e.lsn.Next(), wal.CommitRecord{TxnID: txnID}.Encode())); err != nil {
		return false, err
	}
	if e.cfg.FsyncOnCommit {
		if err := e.walWriter.Sync(); err != nil {
			return false, err
		}
	}

	e.index.Delete(path)
	e.metaMu.Lock()
	headPage := e.headPages[docID]
	delete(e.headPages, docID)
	delete(e.pathByID, docID)
	e.metaMu.Unlock()

	e.fulltext.Delete(docID)
	e.pages.FreeChain(headPage)

	e.epoch.Add(1)
	return true, nil
}

// Scan returns every document whose path starts with prefix, in path order.
func (e *Engine) Scan(prefix types.Path, limit int) ([]Document, error) {
	entries := e.index.Scan(prefix, func(key types.Comparable) bool {
		return key.(types.Path).HasPrefix(prefix)
	}, limit)
	return e.hydrateEntries(entries)
}

// ListAll returns up to limit documents in path order (limit <= 0 means
// unbounded). This is the primary index's natural order, used by query
// routing's list-all and wildcard dispatch.
func (e *Engine) ListAll(limit int) ([]Document, error) {
	entries := e.index.ListAll(limit)
	return e.hydrateEntries(entries)
}

// List returns a stable page of documents ordered by CreatedAt ascending,
// tiebreaking by id, starting after the first offset documents in that
// order. offset/limit <= 0 mean "from the start"/"unbounded".
func (e *Engine) List(offset, limit int) ([]Document, error) {
	entries := e.index.ListAll(0)
	docs, err := e.hydrateEntries(entries)
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Time().Equal(docs[j].CreatedAt.Time()) {
			return docs[i].CreatedAt.Time().Before(docs[j].CreatedAt.Time())
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})

	if offset > 0 {
		if offset >= len(docs) {
			return nil, nil
		}
		docs = docs[offset:]
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (e *Engine) hydrateEntries(entries []btree.Entry[types.DocumentId]) ([]Document, error) {
	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		doc, err := e.hydrateLocked(entry.Value)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Search ranks documents against query via the full-text index.
func (e *Engine) Search(query string, limit int) ([]trigram.Hit, error) {
	return e.fulltext.Search(query, limit)
}

// Epoch returns the engine's current reader epoch, incremented once per
// committed write. Callers that cache query results can use it to detect
// staleness without re-running the query.
func (e *Engine) Epoch() uint64 {
	return e.epoch.Load()
}

// Flush forces a durability barrier: it fsyncs the page file and the WAL
// tail unconditionally, regardless of cfg.FsyncOnCommit, and returns only
// once both are confirmed on disk.
func (e *Engine) Flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.pages.Sync(); err != nil {
		return err
	}
	return e.walWriter.Sync()
}

// Checkpoint snapshots the primary index to a manifest file and rotates
// the WAL, so recovery after this point never needs to replay older
// entries.
func (e *Engine) Checkpoint() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.checkpointLocked()
}

func (e *Engine) checkpointLocked() error {
	listEntries := e.index.ListAll(0)
	e.metaMu.RLock()
	manifestEntries := make([]manifestEntry, 0, len(listEntries))
	for _, entry := range listEntries {
		docID := entry.Value
		headPage, ok := e.headPages[docID]
		if !ok {
			continue
		}
		manifestEntries = append(manifestEntries, manifestEntry{
			Path:     entry.Key.(types.Path).String(),
			DocID:    docID.Bytes(),
			HeadPage: uint64(headPage),
		})
	}
	e.metaMu.RUnlock()

	lsn := e.lsn.Current()
	if err := e.checkpoints.Create(manifestEntries, lsn); err != nil {
		return err
	}

	if err := e.walWriter.Close(); err != nil {
		return err
	}
	if err := os.Remove(e.walPath); err != nil && !os.IsNotExist(err) {
		return kerrors.NewIoFatal("wal.rotate", err)
	}

	opts := wal.DefaultOptions()
	opts.DirPath = e.cfg.DataDir
	if e.cfg.FsyncOnCommit {
		opts.SyncPolicy = wal.SyncEveryWrite
	} else {
		opts.SyncPolicy = wal.SyncInterval
	}
	writer, err := wal.NewWALWriter(e.walPath, opts)
	if err != nil {
		return err
	}
	e.walWriter = writer
	return nil
}

func (e *Engine) runCheckpointLoop() {
	ticker := time.NewTicker(e.cfg.CheckpointInterval)
	defer ticker.Stop()
	defer close(e.checkpointDone)
	for {
		select {
		case <-ticker.C:
			e.Checkpoint()
		case <-e.checkpointStop:
			return
		}
	}
}

// Close flushes a final checkpoint and releases the underlying files.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.checkpointStop)
		<-e.checkpointDone

		if cErr := e.Checkpoint(); cErr != nil {
			err = cErr
		}
		if wErr := e.walWriter.Close(); wErr != nil && err == nil {
			err = wErr
		}
		if pErr := e.pages.Close(); pErr != nil && err == nil {
			err = pErr
		}
	})
	return err
}

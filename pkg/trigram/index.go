// Package trigram implements the full-text index: an inverted index from
// character trigrams to posting bitmaps, plus a reverse map from document
// to its trigrams so delete and update touch only the grams that actually
// changed.
package trigram

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/exp/slices"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
	"github.com/kotadb/kotadb/pkg/types"
)

const (
	numShards     = 16
	previewWindow = 160
	shortDocBoost = 0.05
)

// Hit is one ranked search result.
type Hit struct {
	ID      types.DocumentId
	Score   float64
	Preview string
}

type shard struct {
	mu      sync.RWMutex
	forward map[string]*Bitset
}

// Index is the trigram full-text index. Forward postings are sharded by
// trigram hash so concurrent inserts touching different grams don't
// contend; reverse-map and document metadata mutations are additionally
// serialized per document so a single document's forward/reverse update
// is atomic.
type Index struct {
	shards [numShards]*shard

	reverseMu sync.RWMutex
	reverse   map[types.DocumentId]map[string]struct{}

	contentMu sync.RWMutex
	content   map[types.DocumentId]string

	slotMu   sync.Mutex
	slots    map[types.DocumentId]uint32
	slotDocs map[uint32]types.DocumentId
	nextSlot uint32
	order    []types.DocumentId

	docLocks sync.Map // types.DocumentId -> *sync.Mutex

	scoreThresholdShort float64
	scoreThresholdLong  float64
}

// NewIndex builds an empty index, configured with the short- and
// long-query score thresholds below which a match is dropped.
func NewIndex(scoreThresholdShort, scoreThresholdLong float64) *Index {
	idx := &Index{
		reverse:             make(map[types.DocumentId]map[string]struct{}),
		content:             make(map[types.DocumentId]string),
		slots:               make(map[types.DocumentId]uint32),
		slotDocs:            make(map[uint32]types.DocumentId),
		scoreThresholdShort: scoreThresholdShort,
		scoreThresholdLong:  scoreThresholdLong,
	}
	for i := range idx.shards {
		idx.shards[i] = &shard{forward: make(map[string]*Bitset)}
	}
	return idx
}

func (idx *Index) lockDoc(id types.DocumentId) func() {
	lockIface, _ := idx.docLocks.LoadOrStore(id, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

func (idx *Index) shardFor(gram string) *shard {
	h := fnv.New32a()
	h.Write([]byte(gram))
	return idx.shards[h.Sum32()%numShards]
}

func (idx *Index) addPosting(gram string, slot uint32) {
	s := idx.shardFor(gram)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.forward[gram]
	if !ok {
		b = NewBitset()
		s.forward[gram] = b
	}
	b.Set(slot)
}

func (idx *Index) removePosting(gram string, slot uint32) {
	s := idx.shardFor(gram)
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.forward[gram]; ok {
		b.Clear(slot)
	}
}

func (idx *Index) forwardBitset(gram string) *Bitset {
	s := idx.shardFor(gram)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forward[gram]
}

func (idx *Index) assignSlot(id types.DocumentId) uint32 {
	idx.slotMu.Lock()
	defer idx.slotMu.Unlock()
	if slot, ok := idx.slots[id]; ok {
		return slot
	}
	slot := idx.nextSlot
	idx.nextSlot++
	idx.slots[id] = slot
	idx.slotDocs[slot] = id
	idx.order = append(idx.order, id)
	return slot
}

// Insert refuses a content-less insert: callers must go through
// InsertWithContent so a document is never silently left unsearchable.
func (idx *Index) Insert(id types.DocumentId) error {
	return kerrors.NewConfig("trigram.insert", "plain insert is not supported; use InsertWithContent")
}

// InsertWithContent tokenizes text and records it in both the forward and
// reverse maps under id's per-document lock.
func (idx *Index) InsertWithContent(id types.DocumentId, text string) error {
	unlock := idx.lockDoc(id)
	defer unlock()

	gramSet := toSet(Tokenize(text))
	slot := idx.assignSlot(id)

	idx.reverseMu.Lock()
	idx.reverse[id] = gramSet
	idx.reverseMu.Unlock()

	idx.contentMu.Lock()
	idx.content[id] = text
	idx.contentMu.Unlock()

	for gram := range gramSet {
		idx.addPosting(gram, slot)
	}
	return nil
}

// UpdateWithContent re-tokenizes text and diffs it against the document's
// current trigram set, touching only the forward postings that actually
// changed rather than removing and re-adding every gram.
func (idx *Index) UpdateWithContent(id types.DocumentId, text string) error {
	unlock := idx.lockDoc(id)
	defer unlock()

	idx.reverseMu.RLock()
	oldGrams, existed := idx.reverse[id]
	idx.reverseMu.RUnlock()
	if !existed {
		return kerrors.NewNotFound("trigram document", id)
	}

	idx.slotMu.Lock()
	slot := idx.slots[id]
	idx.slotMu.Unlock()

	newGrams := toSet(Tokenize(text))

	for gram := range newGrams {
		if _, already := oldGrams[gram]; !already {
			idx.addPosting(gram, slot)
		}
	}
	for gram := range oldGrams {
		if _, stillPresent := newGrams[gram]; !stillPresent {
			idx.removePosting(gram, slot)
		}
	}

	idx.reverseMu.Lock()
	idx.reverse[id] = newGrams
	idx.reverseMu.Unlock()

	idx.contentMu.Lock()
	idx.content[id] = text
	idx.contentMu.Unlock()

	return nil
}

// Delete removes id from both maps, reporting whether it was indexed.
func (idx *Index) Delete(id types.DocumentId) bool {
	unlock := idx.lockDoc(id)
	defer unlock()

	idx.reverseMu.Lock()
	grams, existed := idx.reverse[id]
	delete(idx.reverse, id)
	idx.reverseMu.Unlock()
	if !existed {
		return false
	}

	idx.slotMu.Lock()
	slot, ok := idx.slots[id]
	if ok {
		delete(idx.slots, id)
		delete(idx.slotDocs, slot)
		idx.order = removeID(idx.order, id)
	}
	idx.slotMu.Unlock()

	if ok {
		for gram := range grams {
			idx.removePosting(gram, slot)
		}
	}

	idx.contentMu.Lock()
	delete(idx.content, id)
	idx.contentMu.Unlock()

	return true
}

// Search ranks documents against query. An empty query or "*" returns
// every indexed document paged by creation order.
func (idx *Index) Search(query string, limit int) ([]Hit, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || trimmed == "*" {
		return idx.wildcard(limit), nil
	}

	queryGrams := Tokenize(query)
	if len(queryGrams) == 0 {
		return nil, nil
	}
	querySet := toSet(queryGrams)

	candidates := idx.candidateSlots(querySet)

	threshold := idx.scoreThresholdLong
	if len(trimmed) <= 6 {
		threshold = idx.scoreThresholdShort
	}

	type scored struct {
		hit Hit
	}
	var results []scored
	candidates.ForEach(func(slot uint32) {
		idx.slotMu.Lock()
		id, ok := idx.slotDocs[slot]
		idx.slotMu.Unlock()
		if !ok {
			return
		}

		idx.reverseMu.RLock()
		docGrams := idx.reverse[id]
		idx.reverseMu.RUnlock()

		score := jaccardScore(querySet, docGrams)
		if score < threshold {
			return
		}

		results = append(results, scored{hit: Hit{
			ID:      id,
			Score:   score,
			Preview: idx.preview(id, queryGrams),
		}})
	})

	sort.Slice(results, func(i, j int) bool {
		if results[i].hit.Score != results[j].hit.Score {
			return results[i].hit.Score > results[j].hit.Score
		}
		return results[i].hit.ID.String() < results[j].hit.ID.String()
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = r.hit
	}
	return hits, nil
}

func (idx *Index) candidateSlots(querySet map[string]struct{}) *Bitset {
	result := NewBitset()
	for gram := range querySet {
		b := idx.forwardBitset(gram)
		if b == nil {
			continue
		}
		b.ForEach(result.Set)
	}
	return result
}

func (idx *Index) wildcard(limit int) []Hit {
	idx.slotMu.Lock()
	order := append([]types.DocumentId(nil), idx.order...)
	idx.slotMu.Unlock()

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	hits := make([]Hit, 0, len(order))
	for _, id := range order {
		idx.contentMu.RLock()
		text := idx.content[id]
		idx.contentMu.RUnlock()
		hits = append(hits, Hit{ID: id, Score: 1.0, Preview: sanitizePreview(truncate(text, previewWindow))})
	}
	return hits
}

func (idx *Index) preview(id types.DocumentId, queryGrams []string) string {
	idx.contentMu.RLock()
	text, ok := idx.content[id]
	idx.contentMu.RUnlock()
	if !ok {
		return ""
	}

	lower := strings.ToLower(text)
	pos := -1
	for _, gram := range queryGrams {
		plain := strings.Trim(gram, string(startPad)+string(endPad))
		if plain == "" {
			continue
		}
		if i := strings.Index(lower, plain); i >= 0 && (pos == -1 || i < pos) {
			pos = i
		}
	}
	if pos == -1 {
		pos = 0
	}

	start := pos - previewWindow/2
	if start < 0 {
		start = 0
	}
	end := start + previewWindow
	if end > len(text) {
		end = len(text)
		start = end - previewWindow
		if start < 0 {
			start = 0
		}
	}

	return sanitizePreview(text[start:end])
}

// jaccardScore ranks a match. Plain Jaccard (|Q ∩ R| /
// |Q ∪ R|) punishes a short query matched against a much longer document,
// since the union term grows with document size regardless of how well
// the query is covered; we use the overlap coefficient (|Q ∩ R| /
// min(|Q|, |R|)) instead, which normalizes by the smaller set and so
// reflects query coverage rather than relative set size. A small boost for
// documents with fewer distinct trigrams keeps ties broken toward shorter,
// more specific documents.
func jaccardScore(query, doc map[string]struct{}) float64 {
	if len(doc) == 0 || len(query) == 0 {
		return 0
	}
	intersection := 0
	for g := range query {
		if _, ok := doc[g]; ok {
			intersection++
		}
	}
	smaller := len(query)
	if len(doc) < smaller {
		smaller = len(doc)
	}
	score := float64(intersection)/float64(smaller) + shortDocBoost/float64(1+len(doc))
	if score > 1 {
		score = 1
	}
	return score
}

func sanitizePreview(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func toSet(grams []string) map[string]struct{} {
	set := make(map[string]struct{}, len(grams))
	for _, g := range grams {
		set[g] = struct{}{}
	}
	return set
}

func removeID(order []types.DocumentId, target types.DocumentId) []types.DocumentId {
	if i := slices.Index(order, target); i >= 0 {
		return slices.Delete(order, i, i+1)
	}
	return order
}

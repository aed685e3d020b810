// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package thread assigns conversation identifiers to emails.
//
// Threads are modelled as a union-find over thread ids: header
// correlation (Message-ID / References) links messages into connected
// components, with a normalised-subject fallback for header-less mail.
// Merges only ever grow threads — once two messages share a thread, no
// later message can split them — and the smaller thread is reassigned to
// the larger, so assignment is monotonic within a run. New threads are
// rooted at the message's own dedupe hash, which makes thread identity
// content-derived and convergent across re-imports.
package thread

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/displayintel/pipeline/internal/models"
	"github.com/displayintel/pipeline/internal/parse"
)

// DefaultSubjectWindow bounds the subject-correlation fallback: two
// header-less messages with the same normalised subject and participant
// pair join one thread only when sent within this window of each other.
// 7 days covers normal reply latency without gluing unrelated recurring
// subjects together.
const DefaultSubjectWindow = 7 * 24 * time.Hour

// maxChainWalk caps how many reference ids are resolved per message.
// Reference chains are flat lists, but malformed archives repeat ids;
// the cap also bounds store lookups per record.
const maxChainWalk = 50

// Store is the storage access the reconstructor needs. All three calls
// are shaped for the message_id and thread_id indexes.
type Store interface {
	GetEmailByMessageID(ctx context.Context, messageID string) (*models.Email, error)
	ThreadSize(ctx context.Context, threadID string) (int, error)
	ReassignThread(ctx context.Context, fromThread, toThread string) (int64, error)
}

// subjectEntry tracks the latest sighting of a subject/participant pair
// for the fallback correlation.
type subjectEntry struct {
	threadID string
	lastSeen *time.Time
}

// Reconstructor assigns thread ids for the records of one import run.
// It is owned by a single orchestrator and is not safe for concurrent
// use; cross-run convergence comes from content-derived thread ids and
// the store's reassignment updates, not from shared state.
type Reconstructor struct {
	store  Store
	window time.Duration

	byMessageID map[string]string       // message id -> thread id, this run
	subjects    map[string]subjectEntry // subject+pair key -> latest thread
	root        map[string]string       // union-find parent links
	firstSeen   map[string]int          // thread id -> arrival order, for tie-breaks
	seq         int
}

// NewReconstructor creates a reconstructor for one import run.
// A window of zero selects DefaultSubjectWindow.
func NewReconstructor(store Store, window time.Duration) *Reconstructor {
	if window <= 0 {
		window = DefaultSubjectWindow
	}
	return &Reconstructor{
		store:       store,
		window:      window,
		byMessageID: make(map[string]string),
		subjects:    make(map[string]subjectEntry),
		root:        make(map[string]string),
		firstSeen:   make(map[string]int),
	}
}

// Assign determines the thread id for a normalised record whose dedupe
// hash is already computed. The returned id is canonical at the time of
// the call; later merges may reassign it in the store, never split it.
func (r *Reconstructor) Assign(ctx context.Context, rec *parse.NormalizedRecord, dedupeHash string) (string, error) {
	threads, err := r.resolveChain(ctx, rec)
	if err != nil {
		return "", err
	}

	var threadID string
	switch {
	case len(threads) > 0:
		threadID, err = r.mergeAll(ctx, threads)
		if err != nil {
			return "", err
		}
	default:
		threadID = r.subjectFallback(rec, dedupeHash)
	}

	r.register(rec, threadID)
	return threadID, nil
}

// resolveChain collects the distinct existing threads referenced by the
// message's own id and its References chain, in chain order.
func (r *Reconstructor) resolveChain(ctx context.Context, rec *parse.NormalizedRecord) ([]string, error) {
	chain := make([]string, 0, len(rec.References)+1)
	if rec.MessageID != "" {
		// A forwarded or cross-mailbox copy shares the Message-ID while
		// hashing differently; it belongs to the copy's thread.
		chain = append(chain, rec.MessageID)
	}
	chain = append(chain, rec.References...)

	var threads []string
	seen := make(map[string]bool)
	walked := 0
	for _, ref := range chain {
		if walked >= maxChainWalk {
			break
		}
		if seen[ref] {
			continue // repeated id in a malformed chain
		}
		seen[ref] = true
		walked++

		if tid, ok := r.byMessageID[ref]; ok {
			threads = appendThread(threads, r.find(tid))
			continue
		}
		existing, err := r.store.GetEmailByMessageID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve reference %s: %w", ref, err)
		}
		if existing != nil {
			threads = appendThread(threads, r.find(existing.ThreadID))
		}
	}
	return threads, nil
}

// mergeAll unions the given threads and returns the surviving id.
func (r *Reconstructor) mergeAll(ctx context.Context, threads []string) (string, error) {
	canonical := threads[0]
	for _, t := range threads[1:] {
		merged, err := r.merge(ctx, canonical, t)
		if err != nil {
			return "", err
		}
		canonical = merged
	}
	return r.find(canonical), nil
}

// merge unions two threads: the smaller one's emails are reassigned to
// the larger's id. Equal sizes tie-break on earliest-seen.
func (r *Reconstructor) merge(ctx context.Context, a, b string) (string, error) {
	a, b = r.find(a), r.find(b)
	if a == b {
		return a, nil
	}

	sizeA, err := r.store.ThreadSize(ctx, a)
	if err != nil {
		return "", fmt.Errorf("thread size %s: %w", a, err)
	}
	sizeB, err := r.store.ThreadSize(ctx, b)
	if err != nil {
		return "", fmt.Errorf("thread size %s: %w", b, err)
	}

	winner, loser := a, b
	if sizeB > sizeA || (sizeB == sizeA && r.order(b) < r.order(a)) {
		winner, loser = b, a
	}

	if _, err := r.store.ReassignThread(ctx, loser, winner); err != nil {
		return "", err
	}
	r.root[loser] = winner
	return winner, nil
}

// subjectFallback correlates header-less messages by normalised subject
// and participant pair within the bounded window, else starts a new
// thread rooted at the message's own identity.
func (r *Reconstructor) subjectFallback(rec *parse.NormalizedRecord, dedupeHash string) string {
	key := subjectKey(rec)
	if key != "" {
		if entry, ok := r.subjects[key]; ok && r.withinWindow(entry.lastSeen, rec.SentAt) {
			return r.find(entry.threadID)
		}
	}
	return dedupeHash
}

// register records the message's thread for later chain and subject
// lookups within this run.
func (r *Reconstructor) register(rec *parse.NormalizedRecord, threadID string) {
	if _, ok := r.firstSeen[threadID]; !ok {
		r.firstSeen[threadID] = r.seq
	}
	r.seq++

	if rec.MessageID != "" {
		r.byMessageID[rec.MessageID] = threadID
	}
	// Referenced ancestors map to this thread too, so a parent arriving
	// after its replies still joins their thread. First mapping wins;
	// merges unify any later disagreement.
	for _, ref := range rec.References {
		if _, ok := r.byMessageID[ref]; !ok {
			r.byMessageID[ref] = threadID
		}
	}
	if key := subjectKey(rec); key != "" {
		r.subjects[key] = subjectEntry{threadID: threadID, lastSeen: rec.SentAt}
	}
}

// find follows union-find parent links with path compression.
func (r *Reconstructor) find(t string) string {
	seen := t
	for {
		parent, ok := r.root[seen]
		if !ok {
			break
		}
		seen = parent
	}
	if seen != t {
		r.root[t] = seen
	}
	return seen
}

func (r *Reconstructor) order(t string) int {
	if n, ok := r.firstSeen[t]; ok {
		return n
	}
	return int(^uint(0) >> 1)
}

// withinWindow reports whether two sightings are close enough in time to
// correlate. A missing timestamp on either side matches — the fallback
// is best-effort and a same-run, same-subject, same-pair match is a
// stronger signal than an absent clock.
func (r *Reconstructor) withinWindow(a, b *time.Time) bool {
	if a == nil || b == nil {
		return true
	}
	d := a.Sub(*b)
	if d < 0 {
		d = -d
	}
	return d <= r.window
}

// subjectKey builds the fallback correlation key: normalised subject plus
// the direction-insensitive sender/first-recipient pair. Empty when the
// record has no usable subject.
func subjectKey(rec *parse.NormalizedRecord) string {
	subject := parse.NormalizeSubject(rec.Subject)
	if subject == "" {
		return ""
	}
	pair := []string{rec.SenderEmail}
	if len(rec.Recipients) > 0 {
		pair = append(pair, rec.Recipients[0])
	}
	if len(pair) == 2 && pair[0] > pair[1] {
		pair[0], pair[1] = pair[1], pair[0]
	}
	return subject + "|" + strings.Join(pair, ",")
}

func appendThread(threads []string, t string) []string {
	for _, existing := range threads {
		if existing == t {
			return threads
		}
	}
	return append(threads, t)
}

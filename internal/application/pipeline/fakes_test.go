package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/analyst"
	"github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/domain/stageerrors"
)

type memStatus struct {
	mu      sync.Mutex
	status  map[string]jobs.JobStatus
	results map[string][]byte
	history []jobs.JobStatus
	cleaned []string
}

func newMemStatus() *memStatus {
	return &memStatus{status: map[string]jobs.JobStatus{}, results: map[string][]byte{}}
}

func (m *memStatus) SetStatus(_ context.Context, id string, st jobs.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.status[id]; ok && cur.Status == jobs.StatusFailed {
		return jobs.ErrJobFailed
	}
	m.status[id] = st
	m.history = append(m.history, st)
	return nil
}

func (m *memStatus) GetStatus(_ context.Context, id string) (*jobs.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.status[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memStatus) SetResult(_ context.Context, id string, slot int, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[fmt.Sprintf("%s:%d", id, slot)] = raw
	return nil
}

func (m *memStatus) GetResult(_ context.Context, id string, slot int, dst any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.results[fmt.Sprintf("%s:%d", id, slot)]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memStatus) Cleanup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.results {
		if strings.HasPrefix(k, id+":") {
			delete(m.results, k)
		}
	}
	delete(m.status, id)
	m.cleaned = append(m.cleaned, id)
	return nil
}

func (m *memStatus) count(s jobs.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, st := range m.history {
		if st.Status == s {
			n++
		}
	}
	return n
}

type memDocs struct {
	mu   sync.Mutex
	docs map[string]*documents.Document
}

func newMemDocs() *memDocs { return &memDocs{docs: map[string]*documents.Document{}} }

func (m *memDocs) Create(_ context.Context, d *documents.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memDocs) Get(_ context.Context, id string) (*documents.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, documents.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) ListByOwner(_ context.Context, owner string, page, pageSize int) (documents.PaginatedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*documents.Document
	for _, d := range m.docs {
		if d.OwnerID == owner {
			cp := *d
			items = append(items, &cp)
		}
	}
	return documents.NewPaginatedResult(items, page, pageSize, int64(len(items))), nil
}

func (m *memDocs) UpdateProgress(_ context.Context, id string, ps documents.ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return documents.ErrNotFound
	}
	if d.Status.Terminal() {
		return nil
	}
	d.Status = documents.StatusProcessing
	d.ProcessingStatus = ps
	return nil
}

func (m *memDocs) MarkFailed(_ context.Context, id, msg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return false, documents.ErrNotFound
	}
	if d.Status.Terminal() {
		return false, nil
	}
	d.Status = documents.StatusFailed
	d.ErrorMessage = msg
	return true, nil
}

func (m *memDocs) Complete(_ context.Context, id string, res review.FinalAnalysisResult, _ int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return false, documents.ErrNotFound
	}
	if d.Status.Terminal() {
		return false, nil
	}
	d.Status = documents.StatusCompleted
	d.AnalysisResult = &res
	score := res.OverallScore
	d.OverallScore = &score
	d.Grade = res.Grade.Letter
	return true, nil
}

func (m *memDocs) Usage(_ context.Context, owner string) (documents.Usage, error) {
	return documents.Usage{OwnerID: owner}, nil
}

func (m *memDocs) status(id string) documents.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Status
}

type memLedger struct {
	mu       sync.Mutex
	balance  map[string]int
	refunds  int
	refunded map[string]bool
}

func newMemLedger() *memLedger {
	return &memLedger{balance: map[string]int{}, refunded: map[string]bool{}}
}

func (l *memLedger) Debit(_ context.Context, owner, _ string, amount int, _ string) (documents.DebitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance[owner] < amount {
		return documents.DebitResult{Success: false, NewBalance: l.balance[owner]}, nil
	}
	l.balance[owner] -= amount
	return documents.DebitResult{Success: true, NewBalance: l.balance[owner]}, nil
}

func (l *memLedger) Refund(_ context.Context, owner, jobID string, amount int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds++
	if l.refunded[jobID] {
		return false, nil
	}
	l.refunded[jobID] = true
	l.balance[owner] += amount
	return true, nil
}

func (l *memLedger) Balance(_ context.Context, owner string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance[owner], nil
}

type queued struct {
	id      string
	url     string
	payload []byte
	policy  jobs.RetryPolicy
}

type memQueue struct {
	mu     sync.Mutex
	msgs   []queued
	dedupe map[string]string
	seq    int
	down   bool
}

func newMemQueue() *memQueue { return &memQueue{dedupe: map[string]string{}} }

func (q *memQueue) Enqueue(_ context.Context, url string, payload []byte, p jobs.RetryPolicy) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return "", errors.New("connection refused")
	}
	if id, ok := q.dedupe[p.DeduplicationID]; ok && p.DeduplicationID != "" {
		return id, nil
	}
	q.seq++
	id := fmt.Sprintf("msg-%d", q.seq)
	if p.DeduplicationID != "" {
		q.dedupe[p.DeduplicationID] = id
	}
	q.msgs = append(q.msgs, queued{id: id, url: url, payload: payload, policy: p})
	return id, nil
}

func (q *memQueue) pop() (queued, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return queued{}, false
	}
	m := q.msgs[0]
	q.msgs = q.msgs[1:]
	return m, true
}

func (q *memQueue) total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

type memSource map[string][]byte

func (s memSource) Stat(_ context.Context, ref string) (int64, error) {
	b, ok := s[ref]
	if !ok {
		return 0, jobs.ErrMissingDependency
	}
	return int64(len(b)), nil
}

func (s memSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	b, ok := s[ref]
	if !ok {
		return nil, jobs.ErrMissingDependency
	}
	return b, nil
}

type plainExtractor struct{}

func (plainExtractor) Extract(_ context.Context, _ string, data []byte) (string, error) {
	return string(data), nil
}

type memErrors struct {
	mu   sync.Mutex
	rows []*stageerrors.StageError
}

func (m *memErrors) Save(_ context.Context, e *stageerrors.StageError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, e)
	return nil
}

func (m *memErrors) ListByJob(_ context.Context, jobID string, _ int) ([]*stageerrors.StageError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*stageerrors.StageError
	for _, r := range m.rows {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memAnalysts struct {
	mu   sync.Mutex
	rows []*analyst.Record
}

func (m *memAnalysts) Save(_ context.Context, r *analyst.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memAnalysts) ListByJob(_ context.Context, jobID string) ([]*analyst.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*analyst.Record
	for _, r := range m.rows {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

// scriptedClient answers by system prompt and fails everything else.
type scriptedClient map[string]string

func (c scriptedClient) Complete(_ context.Context, req domai.Request) (domai.Completion, error) {
	if a, ok := c[req.System]; ok {
		return domai.Completion{Text: a}, nil
	}
	return domai.Completion{}, errors.New("model unavailable")
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/everbloom-ai/everbloom/internal/dispatch"
	"github.com/everbloom-ai/everbloom/internal/models"
	"github.com/everbloom-ai/everbloom/internal/providers/llm"
	"github.com/everbloom-ai/everbloom/internal/utils"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// --- message log ---

type fakeMessageLog struct {
	msgs      map[string][]models.Message // oldest-first
	appendErr error
}

func newFakeMessageLog() *fakeMessageLog {
	return &fakeMessageLog{msgs: map[string][]models.Message{}}
}

func (f *fakeMessageLog) Append(_ context.Context, userID string, m models.Message) (int64, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.msgs[userID] = append(f.msgs[userID], m)
	return int64(len(f.msgs[userID])), nil
}

func (f *fakeMessageLog) Page(_ context.Context, userID string, page, pageSize int) ([]models.Message, bool, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 30
	}
	all := f.msgs[userID]
	// newest-first window, returned oldest-first, like LRANGE + reverse
	start := page * pageSize
	if start >= len(all) {
		return nil, false, nil
	}
	stop := start + pageSize
	if stop > len(all) {
		stop = len(all)
	}
	out := make([]models.Message, 0, stop-start)
	for i := len(all) - 1 - start; i >= len(all)-stop; i-- {
		out = append(out, all[i])
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, stop < len(all), nil
}

func (f *fakeMessageLog) RecentN(_ context.Context, userID string, n int) ([]models.Message, error) {
	all := f.msgs[userID]
	if n > len(all) {
		n = len(all)
	}
	out := make([]models.Message, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

func (f *fakeMessageLog) Len(_ context.Context, userID string) (int64, error) {
	return int64(len(f.msgs[userID])), nil
}

// --- counters ---

type fakeCounters struct {
	total      map[string]int64
	sinceChunk map[string]int64
	chunks     map[string]int64
	daily      map[string]int64 // userID + "|" + yyyy-mm-dd
	tokens     map[string]float64

	incrTotalErr error
	dailyErr     error
	tokensErr    error
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{
		total:      map[string]int64{},
		sinceChunk: map[string]int64{},
		chunks:     map[string]int64{},
		daily:      map[string]int64{},
		tokens:     map[string]float64{},
	}
}

func (f *fakeCounters) IncrTotal(_ context.Context, u string) (int64, error) {
	if f.incrTotalErr != nil {
		return 0, f.incrTotalErr
	}
	f.total[u]++
	return f.total[u], nil
}

func (f *fakeCounters) IncrSinceChunk(_ context.Context, u string) (int64, error) {
	f.sinceChunk[u]++
	return f.sinceChunk[u], nil
}

func (f *fakeCounters) SinceChunk(_ context.Context, u string) (int64, error) {
	return f.sinceChunk[u], nil
}

func (f *fakeCounters) ResetSinceChunk(_ context.Context, u string) error {
	f.sinceChunk[u] = 0
	return nil
}

func (f *fakeCounters) IncrChunks(_ context.Context, u string) (int64, error) {
	f.chunks[u]++
	return f.chunks[u], nil
}

func (f *fakeCounters) Chunks(_ context.Context, u string) (int64, error) {
	return f.chunks[u], nil
}

func (f *fakeCounters) ResetChunks(_ context.Context, u string) error {
	f.chunks[u] = 0
	return nil
}

func dayKey(u string, day time.Time) string {
	return u + "|" + day.UTC().Format("2006-01-02")
}

func (f *fakeCounters) DailyCount(_ context.Context, u string, day time.Time) (int64, error) {
	if f.dailyErr != nil {
		return 0, f.dailyErr
	}
	return f.daily[dayKey(u, day)], nil
}

func (f *fakeCounters) IncrDaily(_ context.Context, u string, day time.Time) (int64, error) {
	if f.dailyErr != nil {
		return 0, f.dailyErr
	}
	f.daily[dayKey(u, day)]++
	return f.daily[dayKey(u, day)], nil
}

func (f *fakeCounters) TokenBalance(_ context.Context, u string) (float64, error) {
	if f.tokensErr != nil {
		return 0, f.tokensErr
	}
	return f.tokens[u], nil
}

func (f *fakeCounters) SetTokenBalance(_ context.Context, u string, balance float64) error {
	f.tokens[u] = balance
	return nil
}

func (f *fakeCounters) DecrTokens(_ context.Context, u string, amount float64) (float64, error) {
	f.tokens[u] -= amount
	return f.tokens[u], nil
}

// --- dispatcher ---

type fakeDispatcher struct {
	tasks []dispatch.Task
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, t dispatch.Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeDispatcher) kinds() []string {
	out := make([]string, len(f.tasks))
	for i, t := range f.tasks {
		out[i] = t.Kind
	}
	return out
}

// --- llm ---

type stubLLM struct {
	out    string
	err    error
	fn     func(req llm.Request) (string, error)
	stream []string // when set, Stream emits these instead of out
	reqs   []llm.Request
}

func (s *stubLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	s.reqs = append(s.reqs, req)
	if s.fn != nil {
		return s.fn(req)
	}
	return s.out, s.err
}

func (s *stubLLM) Stream(ctx context.Context, req llm.Request) (<-chan string, <-chan error) {
	if len(s.stream) > 0 {
		s.reqs = append(s.reqs, req)
		chunks := make(chan string)
		errs := make(chan error, 1)
		go func() {
			defer close(chunks)
			defer close(errs)
			for _, c := range s.stream {
				select {
				case chunks <- c:
				case <-ctx.Done():
					return
				}
			}
		}()
		return chunks, errs
	}

	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	out, err := s.Generate(ctx, req)
	if err != nil {
		errs <- err
	} else if out != "" {
		chunks <- out
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

func (s *stubLLM) Close() error { return nil }

// --- postgres repos ---

type fakeSummaryRepo struct {
	rows      []models.ConversationSummary
	insertErr error
}

func (f *fakeSummaryRepo) Insert(_ context.Context, s *models.ConversationSummary) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows = append(f.rows, *s)
	return nil
}

func (f *fakeSummaryRepo) ListPendingChunks(_ context.Context, userID string) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	for _, r := range f.rows {
		if r.UserID == userID && !r.IsSuperSummary {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSummaryRepo) DeleteChunks(_ context.Context, userID string, ids []string) error {
	drop := map[string]struct{}{}
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := f.rows[:0]
	for _, r := range f.rows {
		if _, ok := drop[r.ID]; ok && r.UserID == userID && !r.IsSuperSummary {
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return nil
}

func (f *fakeSummaryRepo) RecentSupers(_ context.Context, userID string, n int) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	for i := len(f.rows) - 1; i >= 0 && len(out) < n; i-- {
		r := f.rows[i]
		if r.UserID == userID && r.IsSuperSummary {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSummaryRepo) UsersWithPendingChunks(_ context.Context, min int) ([]string, error) {
	counts := map[string]int{}
	for _, r := range f.rows {
		if !r.IsSuperSummary {
			counts[r.UserID]++
		}
	}
	var out []string
	for u, n := range counts {
		if n >= min {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeSummaryRepo) UsersWithFreshSupers(_ context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range f.rows {
		if !r.IsSuperSummary {
			continue
		}
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, r.UserID)
	}
	return out, nil
}

func (f *fakeSummaryRepo) supers() []models.ConversationSummary {
	var out []models.ConversationSummary
	for _, r := range f.rows {
		if r.IsSuperSummary {
			out = append(out, r)
		}
	}
	return out
}

type fakeProfileRepo struct {
	profiles map[string]*models.UserProfileAnalysis
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: map[string]*models.UserProfileAnalysis{}}
}

func (f *fakeProfileRepo) GetByUserID(_ context.Context, userID string) (*models.UserProfileAnalysis, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfileRepo) Upsert(_ context.Context, p *models.UserProfileAnalysis) error {
	cp := *p
	f.profiles[p.UserID] = &cp
	return nil
}

type fakeSafetyRepo struct {
	states map[string]*models.SafetyState
	saves  int
}

func newFakeSafetyRepo() *fakeSafetyRepo {
	return &fakeSafetyRepo{states: map[string]*models.SafetyState{}}
}

func (f *fakeSafetyRepo) Get(_ context.Context, userID string) (*models.SafetyState, error) {
	if s, ok := f.states[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return &models.SafetyState{UserID: userID, Concern: models.ConcernNone}, nil
}

func (f *fakeSafetyRepo) Save(_ context.Context, s *models.SafetyState) error {
	cp := *s
	f.states[s.UserID] = &cp
	f.saves++
	return nil
}

type fakePersonaRepo struct {
	personas map[string]*models.PersonaState
}

func newFakePersonaRepo() *fakePersonaRepo {
	return &fakePersonaRepo{personas: map[string]*models.PersonaState{}}
}

func (f *fakePersonaRepo) GetByUserID(_ context.Context, userID string) (*models.PersonaState, error) {
	p, ok := f.personas[userID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePersonaRepo) Save(_ context.Context, p *models.PersonaState) error {
	cp := *p
	f.personas[p.UserID] = &cp
	return nil
}

type fakeSubscriptionRepo struct {
	subs   map[string]*models.Subscription
	getErr error
	deltas map[string]float64
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{
		subs:   map[string]*models.Subscription{},
		deltas: map[string]float64{},
	}
}

func (f *fakeSubscriptionRepo) GetByUserID(_ context.Context, userID string) (*models.Subscription, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if s, ok := f.subs[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return &models.Subscription{UserID: userID, Tier: models.TierFree}, nil
}

func (f *fakeSubscriptionRepo) AddTokenBalance(_ context.Context, userID string, delta float64) error {
	f.deltas[userID] += delta
	return nil
}

// --- mongo repos ---

type fakeAuditRepo struct {
	entries []models.SafetyAuditEntry
}

func (f *fakeAuditRepo) Insert(_ context.Context, e *models.SafetyAuditEntry) error {
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAuditRepo) ListByUser(_ context.Context, userID string, limit int64) ([]models.SafetyAuditEntry, error) {
	var out []models.SafetyAuditEntry
	for i := len(f.entries) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if f.entries[i].UserID == userID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

// --- cache ---

type fakeCache struct {
	store map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string][]byte{}}
}

func (f *fakeCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	b, ok := f.store[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	f.store[key] = b
	return nil
}

func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.store, k)
	}
	return nil
}

func nowUTCDay() time.Time { return time.Now().UTC() }

var errBoom = errors.New("boom")

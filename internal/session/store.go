package session

import (
	"errors"
	"sync"
	"time"
)

// DefaultRetention keeps a terminal session pollable for a short window after
// its checkout window closes, so a client that just finished (or just missed)
// checkout still gets a definitive status instead of a 404.
const DefaultRetention = 5 * time.Minute

var (
	ErrExists        = errors.New("payment session already exists")
	ErrNotFound      = errors.New("payment session not found")
	ErrInvalidStatus = errors.New("invalid session status")
	ErrBadExpiry     = errors.New("session expiry must be in the future")
)

// Store is the keyed session holder. Each paymentId owns one entry with its
// own mutex: reads and writes against one key are totally ordered, different
// keys proceed fully in parallel. The map-level lock only guards entry
// lookup/insert/remove.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	retention time.Duration

	now func() time.Time
}

type entry struct {
	mu    sync.Mutex
	sess  Session
	timer *time.Timer
}

func NewStore(retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		entries:   make(map[string]*entry),
		retention: retention,
		now:       time.Now,
	}
}

// Create registers a new session. The caller fixes ExpiresAt; status defaults
// to pending and timestamps are stamped here. A second create for the same
// paymentId fails rather than resetting the checkout window.
func (st *Store) Create(s Session) (Session, error) {
	if s.PaymentID == "" {
		return Session{}, ErrNotFound
	}
	now := st.now()
	if !s.ExpiresAt.After(now) {
		return Session{}, ErrBadExpiry
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	if !ValidStatus(s.Status) {
		return Session{}, ErrInvalidStatus
	}
	s.CreatedAt = now
	s.UpdatedAt = now

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.entries[s.PaymentID]; exists {
		return Session{}, ErrExists
	}

	e := &entry{sess: s.clone()}
	st.entries[s.PaymentID] = e
	st.scheduleLocked(e)
	return s.clone(), nil
}

// Get returns the session, lazily transitioning it to expired first when its
// window has passed. No read ever observes a stale pending/processing session,
// even before the purge timer fires.
func (st *Store) Get(paymentID string) (Session, error) {
	e, ok := st.lookup(paymentID)
	if !ok {
		return Session{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st.expireLocked(e)
	return e.sess.clone(), nil
}

// Update applies a patch to the session. The returned bool reports whether
// this call changed state: under concurrent duplicate "paid" submissions
// exactly one caller sees true, and only that caller should drive
// reconciliation.
//
// Semantics, in order:
//   - already paid: no-op returning the unchanged session (idempotent
//     short-circuit; duplicate side effects from a race collapse here);
//   - past its window and not marking paid: the lazy-expiry transition is
//     performed instead of the requested update;
//   - marking paid: allowed even past the expiry boundary — the receipt
//     proves money moved, refusing would strand the payment — and stamps
//     PaidAt;
//   - anything else: plain field/metadata update.
func (st *Store) Update(paymentID string, p UpdateParams) (Session, bool, error) {
	if p.Status != nil && !ValidStatus(*p.Status) {
		return Session{}, false, ErrInvalidStatus
	}

	e, ok := st.lookup(paymentID)
	if !ok {
		return Session{}, false, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := st.now()
	s := &e.sess

	if s.Status == StatusPaid {
		return s.clone(), false, nil
	}

	markingPaid := p.Status != nil && *p.Status == StatusPaid
	if s.Expired(now) && !markingPaid {
		changed := s.Status != StatusExpired
		if changed {
			s.Status = StatusExpired
			s.UpdatedAt = now
			st.schedule(e)
		}
		return s.clone(), false, nil
	}

	if p.Status != nil {
		s.Status = *p.Status
		if markingPaid {
			paidAt := now
			s.PaidAt = &paidAt
		}
	}
	if p.TxHash != nil {
		s.TxHash = *p.TxHash
	}
	if len(p.Metadata) > 0 {
		if s.Metadata == nil {
			s.Metadata = make(map[string]interface{}, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			s.Metadata[k] = v
		}
	}
	s.UpdatedAt = now

	st.schedule(e)
	return s.clone(), true, nil
}

// MarkPaid is the exactly-once paid transition. settle runs while the
// session's lock is held, so for one paymentId at most one settle is ever in
// flight and a concurrent duplicate blocks, then observes the paid state and
// skips its own settle. Unrelated sessions are untouched; settle holds no
// store-wide lock.
//
// The session transitions to paid only after settle returns nil; a settle
// failure leaves the session exactly as it was, so a rejected receipt never
// produces a paid session.
func (st *Store) MarkPaid(paymentID, txHash string, settle func(Session) error) (Session, bool, error) {
	e, ok := st.lookup(paymentID)
	if !ok {
		return Session{}, false, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := &e.sess
	if s.Status == StatusPaid {
		return s.clone(), false, nil
	}

	if settle != nil {
		if err := settle(s.clone()); err != nil {
			return s.clone(), false, err
		}
	}

	now := st.now()
	paidAt := now
	s.Status = StatusPaid
	s.PaidAt = &paidAt
	if txHash != "" {
		s.TxHash = txHash
	}
	s.UpdatedAt = now

	st.schedule(e)
	return s.clone(), true, nil
}

// Len reports the number of live entries (purged sessions excluded).
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

func (st *Store) lookup(paymentID string) (*entry, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.entries[paymentID]
	return e, ok
}

// expireLocked performs the read-time staleness check. Caller holds e.mu.
func (st *Store) expireLocked(e *entry) {
	now := st.now()
	if e.sess.Status != StatusExpired && e.sess.Expired(now) {
		e.sess.Status = StatusExpired
		e.sess.UpdatedAt = now
	}
}

func (st *Store) schedule(e *entry) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.scheduleLocked(e)
}

// scheduleLocked (re)arms the self-expiry wake-up: expiry plus the trailing
// retention buffer, or one retention window from now when the boundary has
// already passed. Firing purges the key unconditionally — by then the session
// is terminal either way. Caller holds st.mu.
func (st *Store) scheduleLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	d := e.sess.ExpiresAt.Add(st.retention).Sub(st.now())
	if d < st.retention {
		d = st.retention
	}
	id := e.sess.PaymentID
	e.timer = time.AfterFunc(d, func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		delete(st.entries, id)
	})
}

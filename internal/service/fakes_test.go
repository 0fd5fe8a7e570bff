package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ljo9000/skupi/internal/external"
	"github.com/Ljo9000/skupi/internal/models"
	"github.com/Ljo9000/skupi/internal/search"
)

// In-memory stores with the same conditional-update semantics as the SQL
// layer: a mutation only applies when the current status is in the allowed
// set, and the caller learns whether a row changed.

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: map[uuid.UUID]*models.Payment{}}
}

func (s *fakePaymentStore) Create(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.EventID == p.EventID &&
			strings.EqualFold(existing.GuestEmail, p.GuestEmail) &&
			!existing.Status.IsTerminal() {
			return fmt.Errorf("pq: duplicate key value violates unique constraint \"idx_payments_active_guest\"")
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *fakePaymentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *fakePaymentStore) GetByAuthRef(ctx context.Context, authRef string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.AuthRef != nil && *p.AuthRef == authRef {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakePaymentStore) GetByCancelToken(ctx context.Context, token uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.CancelToken == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakePaymentStore) HasActivePayment(ctx context.Context, eventID uuid.UUID, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.EventID == eventID && strings.EqualFold(p.GuestEmail, email) && !p.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakePaymentStore) UpdateStatus(ctx context.Context, id uuid.UUID, to models.PaymentStatus, from ...models.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			p.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *fakePaymentStore) SetAuthRef(ctx context.Context, id uuid.UUID, authRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		p.AuthRef = &authRef
	}
	return nil
}

func (s *fakePaymentStore) SetChargeRef(ctx context.Context, id uuid.UUID, chargeRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		p.ChargeRef = &chargeRef
	}
	return nil
}

func (s *fakePaymentStore) CountByEventInStatuses(ctx context.Context, eventID uuid.UUID, statuses []models.PaymentStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.payments {
		if p.EventID != eventID {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *fakePaymentStore) ListByEventInStatuses(ctx context.Context, eventID uuid.UUID, statuses []models.PaymentStatus) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.EventID != eventID {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				out = append(out, *p)
				break
			}
		}
	}
	return out, nil
}

func (s *fakePaymentStore) ListConfirmedNames(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, p := range s.payments {
		if p.EventID == eventID && p.Status == models.PaymentConfirmed {
			names = append(names, p.GuestName)
		}
	}
	return names, nil
}

func (s *fakePaymentStore) status(id uuid.UUID) models.PaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id].Status
}

// hookedPaymentStore runs a callback right before the first conditional
// update targeting confirmed, to force a specific interleaving.
type hookedPaymentStore struct {
	*fakePaymentStore
	hookMu        sync.Mutex
	beforeConfirm func()
}

func (s *hookedPaymentStore) UpdateStatus(ctx context.Context, id uuid.UUID, to models.PaymentStatus, from ...models.PaymentStatus) (bool, error) {
	if to == models.PaymentConfirmed {
		s.hookMu.Lock()
		hook := s.beforeConfirm
		s.beforeConfirm = nil
		s.hookMu.Unlock()
		if hook != nil {
			hook()
		}
	}
	return s.fakePaymentStore.UpdateStatus(ctx, id, to, from...)
}

type fakeEventStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: map[uuid.UUID]*models.Event{}}
}

func (s *fakeEventStore) Create(ctx context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *fakeEventStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeEventStore) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Slug == slug {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeEventStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeEventStore) UpdateStatus(ctx context.Context, id uuid.UUID, to models.EventStatus, from ...models.EventStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if e.Status == f {
			e.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeEventStore) ListDueForSweep(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if (e.Status == models.EventActive || e.Status == models.EventConfirmed) && e.PayDeadline.Before(now) {
			out = append(out, *e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeEventStore) status(id uuid.UUID) models.EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id].Status
}

type fakeWaitlistStore struct {
	mu      sync.Mutex
	entries []*models.WaitingListEntry
}

func (s *fakeWaitlistStore) Create(ctx context.Context, e *models.WaitingListEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeWaitlistStore) IsWaiting(ctx context.Context, eventID uuid.UUID, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.EventID == eventID && strings.EqualFold(e.GuestEmail, email) && e.NotifiedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeWaitlistStore) OldestWaiting(ctx context.Context, eventID uuid.UUID) (*models.WaitingListEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.EventID == eventID && e.NotifiedAt == nil {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeWaitlistStore) MarkNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id && e.NotifiedAt == nil {
			now := time.Now()
			e.NotifiedAt = &now
			return true, nil
		}
	}
	return false, nil
}

// fakeGateway scripts gateway responses per authorization reference.
type fakeGateway struct {
	mu            sync.Mutex
	authorizeErr  error
	captureErr    error
	cancelErr     error
	statuses      map[string]string
	chargeRefs    map[string]string
	authorizeN    int
	captureCalls  []string
	cancelCalls   []string
	refundCalls   []string
	retrieveCalls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses:   map[string]string{},
		chargeRefs: map[string]string{},
	}
}

func (g *fakeGateway) Authorize(ctx context.Context, amountCents int64, reference, email, description string) (*external.AuthorizeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	g.authorizeN++
	authRef := fmt.Sprintf("auth_%d", g.authorizeN)
	g.statuses[authRef] = external.AuthStatusRequiresCapture
	return &external.AuthorizeResponse{
		AuthRef:      authRef,
		ClientSecret: authRef + "_secret",
		Status:       external.AuthStatusRequiresCapture,
		AmountCents:  amountCents,
	}, nil
}

func (g *fakeGateway) Retrieve(ctx context.Context, authRef string) (*external.AuthorizationDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieveCalls = append(g.retrieveCalls, authRef)
	status, ok := g.statuses[authRef]
	if !ok {
		status = external.AuthStatusRequiresCapture
	}
	return &external.AuthorizationDetails{
		AuthRef:   authRef,
		Status:    status,
		ChargeRef: g.chargeRefs[authRef],
	}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, authRef string, amountCents int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls = append(g.captureCalls, authRef)
	if g.captureErr != nil {
		return "", g.captureErr
	}
	chargeRef := "ch_" + authRef
	g.statuses[authRef] = external.AuthStatusCaptured
	g.chargeRefs[authRef] = chargeRef
	return chargeRef, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, authRef, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls = append(g.cancelCalls, authRef)
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.statuses[authRef] = external.AuthStatusCancelled
	return nil
}

func (g *fakeGateway) Refund(ctx context.Context, chargeRef, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, chargeRef)
	return nil
}

func (g *fakeGateway) setStatus(authRef, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[authRef] = status
}

func (g *fakeGateway) captures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.captureCalls)
}

// fakeNotifier counts dispatches per message kind.
type fakeNotifier struct {
	mu            sync.Mutex
	confirmed     int
	cancelled     int
	selfCancelled int
	eventFull     int
	spotAvailable []uuid.UUID
}

func (n *fakeNotifier) PaymentConfirmed(ctx context.Context, p *models.Payment, e *models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed++
}

func (n *fakeNotifier) PaymentCancelled(ctx context.Context, p *models.Payment, e *models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
}

func (n *fakeNotifier) SelfCancelConfirmed(ctx context.Context, p *models.Payment, e *models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.selfCancelled++
}

func (n *fakeNotifier) EventFull(ctx context.Context, organizerEmail string, e *models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.eventFull++
}

func (n *fakeNotifier) SpotAvailable(ctx context.Context, entry *models.WaitingListEntry, e *models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.spotAvailable = append(n.spotAvailable, entry.ID)
}

func (n *fakeNotifier) counts() (confirmed, cancelled, selfCancelled, eventFull, spots int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.confirmed, n.cancelled, n.selfCancelled, n.eventFull, len(n.spotAvailable)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *fakePublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

type fakeIndexer struct {
	mu   sync.Mutex
	docs []*search.EventDocument
}

func (i *fakeIndexer) IndexEvent(ctx context.Context, doc *search.EventDocument) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs = append(i.docs, doc)
	return nil
}

func (i *fakeIndexer) Search(ctx context.Context, organizerID, query string, page, pageSize int) ([]search.EventDocument, error) {
	return nil, nil
}

// harness wires the fakes into a full service set for a test.
type harness struct {
	payments  *fakePaymentStore
	events    *fakeEventStore
	waitlist  *fakeWaitlistStore
	gateway   *fakeGateway
	notifier  *fakeNotifier
	publisher *fakePublisher
	services  *Services
}

func newHarness() *harness {
	h := &harness{
		payments:  newFakePaymentStore(),
		events:    newFakeEventStore(),
		waitlist:  &fakeWaitlistStore{},
		gateway:   newFakeGateway(),
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
	}
	h.services = NewServices(h.payments, h.events, h.waitlist, h.gateway, h.notifier, h.publisher, nil, &fakeIndexer{})
	return h
}

func (h *harness) seedEvent(minGuests, maxGuests int, deadline time.Time) *models.Event {
	event := &models.Event{
		Slug:            "abc123",
		OrganizerID:     uuid.New(),
		OrganizerEmail:  "organizer@example.com",
		Name:            "Wine tasting",
		StartsAt:        deadline.Add(24 * time.Hour),
		PayDeadline:     deadline,
		PriceCents:      500,
		ServiceFeeCents: 58,
		MinGuests:       minGuests,
		MaxGuests:       maxGuests,
		Status:          models.EventActive,
	}
	_ = h.events.Create(context.Background(), event)
	return event
}

func (h *harness) seedPayment(eventID uuid.UUID, email string, status models.PaymentStatus) *models.Payment {
	authRef := "auth_" + uuid.NewString()[:8]
	payment := &models.Payment{
		ID:              uuid.New(),
		EventID:         eventID,
		GuestName:       "Guest " + email,
		GuestEmail:      email,
		AuthRef:         &authRef,
		AmountCents:     558,
		OwnerShareCents: 500,
		Status:          status,
		CancelToken:     uuid.New(),
	}
	h.payments.mu.Lock()
	h.payments.payments[payment.ID] = payment
	h.payments.mu.Unlock()
	h.gateway.setStatus(authRef, external.AuthStatusRequiresCapture)
	return payment
}

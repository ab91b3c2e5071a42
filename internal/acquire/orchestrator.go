// Package acquire drives a user's whole path from "I want this ticket" to a
// confirmed ticket or a clear failure: selection, admission wait, payment and
// finalization, with recovery across reloads. One Orchestrator per buyer
// session per event.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticket-acquisition/config"
	"ticket-acquisition/internal/admission"
	"ticket-acquisition/internal/payment"
	"ticket-acquisition/internal/purchase"
	"ticket-acquisition/internal/store"
	"ticket-acquisition/models"
	"ticket-acquisition/monitoring"
)

type State string

const (
	StateIdle            State = "idle"
	StateSelected        State = "selected"
	StateAdmissionWait   State = "admission_wait"
	StateReady           State = "ready"
	StatePaymentInFlight State = "payment_in_flight"
	StateFinalizing      State = "finalizing"
	StateSuccess         State = "success"
	StateFailed          State = "failed"
)

// Failure is what the user sees after a failed transition. Retryable means
// "try again"; otherwise the message tells them to contact support with the
// reference.
type Failure struct {
	Message   string `json:"message"`
	Reference string `json:"reference,omitempty"`
	Retryable bool   `json:"retryable"`
}

// Queue is the admission client surface the orchestrator consumes.
type Queue interface {
	Join(ctx context.Context, eventID string, guest *models.BuyerInfo) (*models.QueueTicket, error)
	Seed(eventID, queueID string, guest *models.BuyerInfo)
	QueueID(eventID string) string
	Refresh(ctx context.Context, eventID string, onTicket func(*models.QueueTicket)) bool
	Subscribe(ctx context.Context, eventID string, onTicket func(*models.QueueTicket)) func()
	Complete(ctx context.Context, eventID string)
}

// Finalizer is the purchase API surface the orchestrator consumes.
type Finalizer interface {
	Finalize(ctx context.Context, req *purchase.Request) ([]models.Ticket, error)
}

type Orchestrator struct {
	cfg       *config.Config
	queue     Queue
	providers *payment.Registry
	finalizer Finalizer
	store     store.SelectionStore

	eventID string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	selection *models.TicketSelection
	quantity  int
	buyer     *models.BuyerInfo

	ticket   *models.QueueTicket
	queuedAt time.Time
	warning  *admission.ProcessingWarning

	session     *payment.Session
	lastOutcome *models.PaymentOutcome
	// attempt numbers payment openings. Open runs off the lock, so a result
	// arriving after a re-selection or a newer opening carries a stale number
	// and must be torn down instead of installed.
	attempt int

	unsubscribe func()
	pollStop    chan struct{}
	polling     bool

	// finalizing is the in-flight guard shared by the provider-callback path
	// and the manual retry path; both must never run a finalize in parallel.
	finalizing  bool
	outcomeDone map[string]bool

	failure *Failure
	tickets []models.Ticket
}

func New(cfg *config.Config, queue Queue, providers *payment.Registry, finalizer Finalizer, sel store.SelectionStore, eventID string) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		cfg:         cfg,
		queue:       queue,
		providers:   providers,
		finalizer:   finalizer,
		store:       sel,
		eventID:     eventID,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		quantity:    1,
		outcomeDone: make(map[string]bool),
	}
	o.warning = admission.NewProcessingWarning(
		cfg.ProcessingWarningDelay,
		cfg.ProcessingWarningCountdown,
		cfg.ProcessingWindow,
		func(countdown time.Duration) {
			log.Printf("processing slot warning for event %s: %s left", eventID, countdown)
		},
		func() {
			log.Printf("processing slot expired locally for event %s", eventID)
		},
	)
	return o
}

// Rehydrate restores a selection persisted before an interruption. If a
// queue id was stored too, the admission wait resumes from it instead of
// forcing a rejoin from the back of the line.
func (o *Orchestrator) Rehydrate(ctx context.Context) error {
	stored, err := o.store.Get(ctx, o.eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil
	}
	sel := stored.Selection
	o.selection = &sel
	o.quantity = stored.Quantity
	if o.quantity < 1 {
		o.quantity = 1
	}
	if stored.Guest != nil {
		o.buyer = stored.Guest
	}
	o.setStateLocked(StateSelected)

	if stored.QueueID != "" {
		o.queue.Seed(o.eventID, stored.QueueID, stored.Guest)
	}
	o.routeLocked()
	o.mu.Unlock()
	return nil
}

// Select records the tier the user picked and decides whether admission
// control applies. Re-selection from any state except Success/Finalizing
// resets quantity to 1 and tears down any in-flight payment surface.
func (o *Orchestrator) Select(ctx context.Context, sel models.TicketSelection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	if sel.EventID != o.eventID {
		return fmt.Errorf("acquire: selection is for event %s, session is for %s", sel.EventID, o.eventID)
	}

	o.mu.Lock()
	if o.state == StateSuccess || o.state == StateFinalizing {
		o.mu.Unlock()
		return fmt.Errorf("acquire: cannot change selection while %s", o.state)
	}

	stale := o.detachSessionLocked()

	o.selection = &sel
	o.quantity = 1
	o.failure = nil
	o.setStateLocked(StateSelected)
	o.routeLocked()
	o.mu.Unlock()

	o.dismissSession(stale)
	o.persist(ctx)
	return nil
}

// SetQuantity re-enters Selected with a new quantity, invalidating any
// in-flight payment surface first.
func (o *Orchestrator) SetQuantity(ctx context.Context, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("acquire: quantity must be at least 1")
	}

	o.mu.Lock()
	if o.selection == nil {
		o.mu.Unlock()
		return fmt.Errorf("acquire: no selection")
	}
	if o.state == StateSuccess || o.state == StateFinalizing {
		o.mu.Unlock()
		return fmt.Errorf("acquire: cannot change quantity while %s", o.state)
	}

	stale := o.detachSessionLocked()
	o.quantity = quantity
	o.failure = nil
	o.setStateLocked(StateSelected)
	o.routeLocked()
	o.mu.Unlock()

	o.dismissSession(stale)
	o.persist(ctx)
	return nil
}

// routeLocked moves from Selected to AdmissionWait or Ready. An already
// ready queue ticket from an earlier join short-circuits the wait.
func (o *Orchestrator) routeLocked() {
	if o.ticket.Ready() {
		o.setStateLocked(StateReady)
		return
	}
	if o.selection.HighDemand(o.cfg.HighDemandThreshold) {
		o.enterAdmissionWaitLocked()
		return
	}
	o.setStateLocked(StateReady)
}

func (o *Orchestrator) enterAdmissionWaitLocked() {
	o.setStateLocked(StateAdmissionWait)
	o.queuedAt = time.Now()

	var guest *models.BuyerInfo
	if o.buyer != nil && o.buyer.Kind == models.BuyerGuest {
		guest = o.buyer
	}

	if o.unsubscribe == nil {
		o.unsubscribe = o.queue.Subscribe(o.ctx, o.eventID, o.onQueueTicket)
	}
	o.startPollingLocked()

	// Join off the lock; the result flows through the same observation
	// point as every position check.
	go func() {
		ticket, err := o.queue.Join(o.ctx, o.eventID, guest)
		if err != nil {
			log.Printf("queue join failed for event %s: %v", o.eventID, err)
			return
		}
		o.onQueueTicket(ticket)
	}()
}

func (o *Orchestrator) startPollingLocked() {
	if o.polling {
		return
	}
	o.polling = true
	o.pollStop = make(chan struct{})
	stop := o.pollStop

	go func() {
		ticker := time.NewTicker(o.cfg.PositionPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// Dropped if a push-triggered check is already in flight.
				o.queue.Refresh(o.ctx, o.eventID, o.onQueueTicket)
			case <-stop:
				return
			case <-o.ctx.Done():
				return
			}
		}
	}()
}

func (o *Orchestrator) stopPollingLocked() {
	if !o.polling {
		return
	}
	o.polling = false
	close(o.pollStop)
}

// onQueueTicket is the single observation point for queue state. Every
// position check, polled or pushed, lands here.
func (o *Orchestrator) onQueueTicket(ticket *models.QueueTicket) {
	o.mu.Lock()
	o.ticket = ticket
	o.warning.Observe(ticket.IsProcessing)

	if o.state == StateAdmissionWait && ticket.Ready() {
		monitoring.TrackAdmissionWait(time.Since(o.queuedAt))
		o.setStateLocked(StateReady)
	}
	o.mu.Unlock()

	o.persist(o.ctx)
}

// StartPayment validates the buyer once and leaves Ready. Zero-price tiers
// never touch a payment provider: they go straight to Finalizing.
func (o *Orchestrator) StartPayment(ctx context.Context, kind payment.Kind, buyer models.BuyerInfo) error {
	if err := buyer.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.state != StateReady {
		o.mu.Unlock()
		return fmt.Errorf("acquire: not ready to pay (state %s)", o.state)
	}
	o.buyer = &buyer
	o.failure = nil

	if o.selection.Free() {
		o.mu.Unlock()
		o.persist(ctx)
		return o.finalize(ctx, nil)
	}

	// Stale surfaces from a previous render are invalid; tear the old one
	// down before a new one is created. Provider switches land here too.
	stale := o.detachSessionLocked()

	provider, err := o.providers.Get(kind)
	if err != nil {
		o.mu.Unlock()
		o.dismissSession(stale)
		return err
	}

	sel := *o.selection
	quantity := o.quantity
	o.setStateLocked(StatePaymentInFlight)
	o.attempt++
	attempt := o.attempt
	o.mu.Unlock()

	o.dismissSession(stale)
	o.persist(ctx)

	session, err := provider.Open(ctx, &payment.CheckoutRequest{
		EventID:     sel.EventID,
		TierID:      sel.TierID,
		Amount:      sel.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Currency:    sel.Currency,
		PayerEmail:  buyer.Email,
		Description: fmt.Sprintf("%s x%d", sel.Name, quantity),
	})
	if err != nil {
		o.mu.Lock()
		if o.state == StatePaymentInFlight && o.attempt == attempt {
			o.setStateLocked(StateReady)
			o.failure = &Failure{Message: paymentOpenMessage(err), Retryable: true}
		}
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	if o.state != StatePaymentInFlight || o.attempt != attempt {
		// A re-selection or a newer opening landed while the form was being
		// created. This surface belongs to the invalidated attempt.
		o.mu.Unlock()
		o.dismissSession(session)
		return fmt.Errorf("acquire: payment attempt superseded")
	}
	o.session = session
	o.mu.Unlock()

	go o.watchOutcome(session)
	return nil
}

func paymentOpenMessage(err error) string {
	if errors.Is(err, payment.ErrConfigUnavailable) {
		return "This payment method is unavailable right now. Please try the other provider."
	}
	return "The payment form could not be opened. Please try again."
}

// watchOutcome waits for the session's single normalized outcome.
func (o *Orchestrator) watchOutcome(session *payment.Session) {
	select {
	case outcome := <-session.Outcome():
		o.handleOutcome(session, outcome)
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) handleOutcome(session *payment.Session, outcome models.PaymentOutcome) {
	monitoring.TrackPaymentOutcome(string(session.Provider), string(outcome.Status))

	o.mu.Lock()
	if o.session != session {
		// Outcome from a surface already torn down by re-selection or a
		// provider switch. Nothing to act on.
		o.mu.Unlock()
		return
	}
	o.session = nil

	switch outcome.Status {
	case models.PaymentSuccess:
		o.lastOutcome = &outcome
		o.mu.Unlock()
		if err := o.finalize(o.ctx, &outcome); err != nil {
			log.Printf("finalize after payment %s: %v", outcome.Reference, err)
		}
		return

	case models.PaymentCancelled:
		// Terminal for this attempt, not a failure toast. The admission
		// slot is preserved so the user can retry without re-queueing.
		o.setStateLocked(StateReady)
		o.failure = &Failure{
			Message:   "Payment was cancelled. Your spot is still held, try again when you are ready.",
			Retryable: true,
		}

	default:
		o.setStateLocked(StateReady)
		o.failure = &Failure{
			Message:   "Payment did not go through. You have not been charged, try again.",
			Retryable: true,
		}
	}
	o.mu.Unlock()
}

// ApprovePayment settles an asynchronous order after the payer approved it.
// A settlement failure keeps the order id in the surfaced failure so support
// can reconcile an authorized-but-unsettled charge.
func (o *Orchestrator) ApprovePayment(ctx context.Context, reference string) error {
	o.mu.Lock()
	session := o.session
	if o.state != StatePaymentInFlight || session == nil || session.Reference != reference {
		o.mu.Unlock()
		return fmt.Errorf("acquire: no payment in flight for reference %s", reference)
	}
	provider, err := o.providers.Get(session.Provider)
	o.mu.Unlock()
	if err != nil {
		return err
	}

	capturer, ok := provider.(payment.Capturer)
	if !ok {
		return fmt.Errorf("acquire: provider %s has no capture step", session.Provider)
	}

	if _, err := capturer.Capture(ctx, reference); err != nil {
		var capErr *payment.CaptureError
		if errors.As(err, &capErr) {
			o.mu.Lock()
			if o.session == session {
				o.session = nil
			}
			o.setStateLocked(StateReady)
			o.failure = &Failure{
				Message:   fmt.Sprintf("Payment could not be completed. If you see a charge, contact support with order %s.", capErr.Reference),
				Reference: capErr.Reference,
				Retryable: false,
			}
			o.mu.Unlock()
		}
		return err
	}

	// Capture resolves the session; watchOutcome drives finalize.
	return nil
}

// finalize calls the purchase API at most once per payment outcome. The
// provider-callback path and the manual retry path share one in-flight
// guard, so a duplicate callback or an impatient retry click can never
// double-submit.
func (o *Orchestrator) finalize(ctx context.Context, outcome *models.PaymentOutcome) error {
	o.mu.Lock()
	if o.finalizing {
		o.mu.Unlock()
		return fmt.Errorf("acquire: finalize already in flight")
	}
	if outcome != nil && o.outcomeDone[outcome.Reference] {
		o.mu.Unlock()
		return fmt.Errorf("acquire: payment %s already redeemed", outcome.Reference)
	}
	if o.selection == nil || o.buyer == nil {
		o.mu.Unlock()
		return fmt.Errorf("acquire: nothing to finalize")
	}

	o.finalizing = true
	o.setStateLocked(StateFinalizing)
	req := &purchase.Request{
		EventID:  o.eventID,
		TierID:   o.selection.TierID,
		Quantity: o.quantity,
		Buyer:    *o.buyer,
		Outcome:  outcome,
	}
	o.mu.Unlock()

	tickets, err := o.finalizer.Finalize(ctx, req)

	o.mu.Lock()
	o.finalizing = false

	if err != nil {
		var recErr *purchase.ReconciliationError
		if errors.As(err, &recErr) {
			monitoring.TrackFinalize("reconciliation")
			o.setStateLocked(StateFailed)
			o.failure = &Failure{
				Message:   recErr.Error(),
				Reference: recErr.Reference,
				Retryable: false,
			}
		} else {
			monitoring.TrackFinalize("error")
			o.setStateLocked(StateFailed)
			o.failure = &Failure{Message: err.Error(), Retryable: true}
		}
		// The stored selection stays: a captured payment may still need a
		// manual finalize retry.
		o.mu.Unlock()
		return err
	}

	monitoring.TrackFinalize("success")
	if outcome != nil {
		o.outcomeDone[outcome.Reference] = true
	}
	o.tickets = tickets
	o.failure = nil
	o.stopPollingLocked()
	o.warning.Stop()
	o.setStateLocked(StateSuccess)
	o.mu.Unlock()

	if err := o.store.Remove(ctx, o.eventID); err != nil {
		log.Printf("clearing selection store for event %s: %v", o.eventID, err)
	}
	o.queue.Complete(ctx, o.eventID)
	return nil
}

// RetryFinalize re-runs finalize for a captured payment whose first finalize
// failed. Manual only; the reconciliation class is never retried
// automatically.
func (o *Orchestrator) RetryFinalize(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateFailed {
		o.mu.Unlock()
		return fmt.Errorf("acquire: nothing to retry (state %s)", o.state)
	}
	outcome := o.lastOutcome
	o.mu.Unlock()

	return o.finalize(ctx, outcome)
}

// Leave tears down timers, the push subscription and any payment surface.
// It does not release the admission slot and does not clear the stored
// selection: the user may come back.
func (o *Orchestrator) Leave(ctx context.Context) {
	o.mu.Lock()
	o.stopPollingLocked()
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.warning.Stop()
	stale := o.detachSessionLocked()
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	o.dismissSession(stale)
	o.cancel()
}

func (o *Orchestrator) detachSessionLocked() *payment.Session {
	session := o.session
	o.session = nil
	return session
}

func (o *Orchestrator) dismissSession(session *payment.Session) {
	if session == nil {
		return
	}
	provider, err := o.providers.Get(session.Provider)
	if err != nil {
		return
	}
	if err := provider.Dismiss(o.ctx, session); err != nil {
		log.Printf("dismissing %s session %s: %v", session.Provider, session.Reference, err)
	}
}

func (o *Orchestrator) setStateLocked(to State) {
	if o.state == to {
		return
	}
	monitoring.TrackStateTransition(string(o.state), string(to))
	log.Printf("acquisition %s: %s -> %s", o.eventID, o.state, to)
	o.state = to
}

// persist writes the durable shadow of the current attempt. Best effort:
// the store is a cache, losing a write only costs recovery convenience.
func (o *Orchestrator) persist(ctx context.Context) {
	o.mu.Lock()
	if o.selection == nil || o.state == StateSuccess {
		o.mu.Unlock()
		return
	}
	stored := &models.StoredSelection{
		Selection: *o.selection,
		Quantity:  o.quantity,
		QueueID:   o.queue.QueueID(o.eventID),
		SavedAt:   time.Now(),
	}
	if o.buyer != nil && o.buyer.Kind == models.BuyerGuest {
		guest := *o.buyer
		stored.Guest = &guest
	}
	o.mu.Unlock()

	if err := o.store.Set(ctx, o.eventID, stored); err != nil {
		log.Printf("persisting selection for event %s: %v", o.eventID, err)
	}
}

// Snapshot is the orchestrator's user-facing status.
type Snapshot struct {
	State        State                   `json:"state"`
	EventID      string                  `json:"event_id"`
	Selection    *models.TicketSelection `json:"selection,omitempty"`
	Quantity     int                     `json:"quantity"`
	Queue        *models.QueueTicket     `json:"queue,omitempty"`
	QueueMessage string                  `json:"queue_message,omitempty"`
	Warning      string                  `json:"warning,omitempty"`
	PayBy        *time.Time              `json:"pay_by,omitempty"`
	Provider     payment.Kind            `json:"provider,omitempty"`
	ApprovalURL  string                  `json:"approval_url,omitempty"`
	Reference    string                  `json:"reference,omitempty"`
	Failure      *Failure                `json:"failure,omitempty"`
	Tickets      []models.Ticket         `json:"tickets,omitempty"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		State:    o.state,
		EventID:  o.eventID,
		Quantity: o.quantity,
		Failure:  o.failure,
		Tickets:  o.tickets,
	}
	if o.selection != nil {
		sel := *o.selection
		snap.Selection = &sel
	}
	if o.ticket != nil {
		t := *o.ticket
		snap.Queue = &t
		if t.Lost() {
			snap.QueueMessage = "Your place in line was lost. Rejoining..."
		} else if !t.Ready() {
			snap.QueueMessage = fmt.Sprintf("%d of %d", t.Position, t.Total)
		}
	}
	if ws := o.warning.State(); ws == admission.WarningCountdown || ws == admission.WarningExpired {
		snap.Warning = ws.String()
	}
	if deadline := o.warning.Deadline(); !deadline.IsZero() {
		snap.PayBy = &deadline
	}
	if o.session != nil {
		snap.Provider = o.session.Provider
		snap.ApprovalURL = o.session.ApprovalURL
		snap.Reference = o.session.Reference
	}
	return snap
}

// State returns the current machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

package admission

import (
	"sync"
	"time"
)

type WarningState int

const (
	WarningIdle WarningState = iota
	WarningProcessing
	WarningCountdown
	WarningExpired
)

func (s WarningState) String() string {
	switch s {
	case WarningIdle:
		return "idle"
	case WarningProcessing:
		return "processing"
	case WarningCountdown:
		return "warning"
	case WarningExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ProcessingWarning tracks how long the caller has been holding the single
// admission slot. After the delay it raises a warning with a countdown, and
// when the countdown lapses it marks the slot expired. Expiry here is
// advisory only; the authoritative timeout is the admission service's own,
// which later surfaces as a lost position.
//
// The warning timers are independent of the position-refresh timer. The only
// coupling is Observe: each position check reports the isProcessing bit, and
// a false observation cancels everything while a false-to-true transition
// starts a fresh delay.
type ProcessingWarning struct {
	delay     time.Duration
	countdown time.Duration
	window    time.Duration

	onWarning func(countdown time.Duration)
	onExpired func()

	mu          sync.Mutex
	state       WarningState
	startedAt   time.Time
	delayTimer  *time.Timer
	expireTimer *time.Timer
}

// NewProcessingWarning builds the warning machine. window is the full
// processing window granted by the admission service, surfaced to the caller
// as a pay-by deadline; delay and countdown drive the warning itself.
func NewProcessingWarning(delay, countdown, window time.Duration, onWarning func(time.Duration), onExpired func()) *ProcessingWarning {
	return &ProcessingWarning{
		delay:     delay,
		countdown: countdown,
		window:    window,
		onWarning: onWarning,
		onExpired: onExpired,
		state:     WarningIdle,
	}
}

func (w *ProcessingWarning) State() WarningState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Observe feeds the isProcessing bit from the latest position check.
func (w *ProcessingWarning) Observe(isProcessing bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !isProcessing {
		w.resetLocked()
		return
	}

	if w.state != WarningIdle {
		// Already counting for this processing stint.
		return
	}

	w.state = WarningProcessing
	w.startedAt = time.Now()
	w.delayTimer = time.AfterFunc(w.delay, w.enterCountdown)
}

// Deadline reports when the admission service's processing window lapses for
// the current stint. Advisory only; zero when nothing is being processed.
func (w *ProcessingWarning) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.startedAt.IsZero() || w.window <= 0 {
		return time.Time{}
	}
	return w.startedAt.Add(w.window)
}

func (w *ProcessingWarning) enterCountdown() {
	w.mu.Lock()
	if w.state != WarningProcessing {
		w.mu.Unlock()
		return
	}
	w.state = WarningCountdown
	w.expireTimer = time.AfterFunc(w.countdown, w.expire)
	onWarning := w.onWarning
	countdown := w.countdown
	w.mu.Unlock()

	if onWarning != nil {
		onWarning(countdown)
	}
}

func (w *ProcessingWarning) expire() {
	w.mu.Lock()
	if w.state != WarningCountdown {
		w.mu.Unlock()
		return
	}
	w.state = WarningExpired
	onExpired := w.onExpired
	w.mu.Unlock()

	if onExpired != nil {
		onExpired()
	}
}

// Stop cancels any pending timers. Used on teardown.
func (w *ProcessingWarning) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

func (w *ProcessingWarning) resetLocked() {
	if w.delayTimer != nil {
		w.delayTimer.Stop()
		w.delayTimer = nil
	}
	if w.expireTimer != nil {
		w.expireTimer.Stop()
		w.expireTimer = nil
	}
	w.startedAt = time.Time{}
	w.state = WarningIdle
}

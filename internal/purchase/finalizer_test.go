package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-acquisition/models"
)

func ticketReply(n int) map[string]any {
	tickets := make([]models.Ticket, n)
	for i := range tickets {
		tickets[i] = models.Ticket{ID: "t-1", Number: "A-001", EventID: "event-1"}
	}
	return map[string]any{"tickets": tickets}
}

func TestFinalizePathSelection(t *testing.T) {
	outcome := &models.PaymentOutcome{Status: models.PaymentSuccess, Reference: "ref-1"}
	guest := models.GuestBuyer("Ana", "ana@example.com", "+1555000")
	auth := models.AuthenticatedBuyer("+1555000")

	tests := []struct {
		name     string
		buyer    models.BuyerInfo
		outcome  *models.PaymentOutcome
		wantPath string
		wantAuth bool
	}{
		{"guest free", guest, nil, "/api/guest-purchase/free", false},
		{"guest paid", guest, outcome, "/api/guest-purchase", false},
		{"authenticated free", auth, nil, "/api/purchase/free", true},
		{"authenticated paid", auth, outcome, "/api/purchase", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				json.NewEncoder(w).Encode(ticketReply(1))
			}))
			defer srv.Close()

			f := NewFinalizer(srv.URL, "user-token")
			tickets, err := f.Finalize(context.Background(), &Request{
				EventID:  "event-1",
				TierID:   "tier-1",
				Quantity: 1,
				Buyer:    tt.buyer,
				Outcome:  tt.outcome,
			})
			require.NoError(t, err)
			assert.Len(t, tickets, 1)
			assert.Equal(t, tt.wantPath, gotPath)
			if tt.wantAuth {
				assert.Equal(t, "Bearer user-token", gotAuth)
			} else {
				assert.Empty(t, gotAuth)
			}
		})
	}
}

func TestFinalizeValidatesBeforeCalling(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := NewFinalizer(srv.URL, "")

	// Guest without email never reaches the wire.
	_, err := f.Finalize(context.Background(), &Request{
		EventID:  "event-1",
		TierID:   "tier-1",
		Quantity: 1,
		Buyer:    models.GuestBuyer("Ana", "", "+1555000"),
	})
	assert.Error(t, err)

	// Neither does a cancelled outcome.
	_, err = f.Finalize(context.Background(), &Request{
		EventID:  "event-1",
		TierID:   "tier-1",
		Quantity: 1,
		Buyer:    models.AuthenticatedBuyer("+1555000"),
		Outcome:  &models.PaymentOutcome{Status: models.PaymentCancelled},
	})
	assert.Error(t, err)

	_, err = f.Finalize(context.Background(), &Request{
		EventID:  "event-1",
		TierID:   "tier-1",
		Quantity: 0,
		Buyer:    models.AuthenticatedBuyer("+1555000"),
	})
	assert.Error(t, err)

	assert.False(t, called)
}

func TestFinalizeFailureAfterPaymentIsReconciliation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "inventory write failed"})
	}))
	defer srv.Close()

	f := NewFinalizer(srv.URL, "")
	_, err := f.Finalize(context.Background(), &Request{
		EventID:  "event-1",
		TierID:   "tier-1",
		Quantity: 2,
		Buyer:    models.GuestBuyer("Ana", "ana@example.com", "+1555000"),
		Outcome:  &models.PaymentOutcome{Status: models.PaymentSuccess, Reference: "ref-409"},
	})
	require.Error(t, err)

	var recErr *ReconciliationError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "ref-409", recErr.Reference)
	assert.Contains(t, err.Error(), "ref-409")
	assert.Contains(t, err.Error(), "inventory write failed")
}

func TestFinalizeFailureWithoutPaymentIsPlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "sold out"})
	}))
	defer srv.Close()

	f := NewFinalizer(srv.URL, "")
	_, err := f.Finalize(context.Background(), &Request{
		EventID:  "event-1",
		TierID:   "tier-1",
		Quantity: 1,
		Buyer:    models.AuthenticatedBuyer("+1555000"),
	})
	require.Error(t, err)

	var recErr *ReconciliationError
	assert.False(t, errors.As(err, &recErr))
	assert.Contains(t, err.Error(), "sold out")
}

func TestFinalizeSendsPaymentFields(t *testing.T) {
	var got finalizeBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ticketReply(2))
	}))
	defer srv.Close()

	f := NewFinalizer(srv.URL, "")
	tickets, err := f.Finalize(context.Background(), &Request{
		EventID:  "event-1",
		TierID:   "tier-1",
		Quantity: 2,
		Buyer:    models.GuestBuyer("Ana", "ana@example.com", "+1555000"),
		Outcome: &models.PaymentOutcome{
			Status:        models.PaymentSuccess,
			Reference:     "ref-1",
			TransactionID: "txn-1",
			Currency:      "USD",
		},
	})
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	assert.Equal(t, "ref-1", got.PaymentRef)
	assert.Equal(t, "txn-1", got.TransactionID)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, 2, got.Quantity)
}

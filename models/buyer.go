package models

import (
	"fmt"
	"strings"
)

type BuyerKind string

const (
	BuyerAuthenticated BuyerKind = "authenticated"
	BuyerGuest         BuyerKind = "guest"
)

// BuyerInfo identifies who receives the tickets. Authenticated buyers only
// supply a notification phone number; the server already knows the rest.
// Guests must supply name, email and phone. Validation happens once, when
// the orchestrator leaves Ready, not ad hoc at every call site.
type BuyerInfo struct {
	Kind  BuyerKind `json:"kind"`
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone"`
}

func AuthenticatedBuyer(phone string) BuyerInfo {
	return BuyerInfo{Kind: BuyerAuthenticated, Phone: phone}
}

func GuestBuyer(name, email, phone string) BuyerInfo {
	return BuyerInfo{Kind: BuyerGuest, Name: name, Email: email, Phone: phone}
}

func (b *BuyerInfo) Validate() error {
	// SMS delivery is mandatory regardless of login state.
	if strings.TrimSpace(b.Phone) == "" {
		return fmt.Errorf("buyer: missing phone number")
	}

	switch b.Kind {
	case BuyerAuthenticated:
		return nil
	case BuyerGuest:
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("buyer: missing guest name")
		}
		email := strings.TrimSpace(b.Email)
		if email == "" || !strings.Contains(email, "@") {
			return fmt.Errorf("buyer: missing or invalid guest email")
		}
		return nil
	default:
		return fmt.Errorf("buyer: unknown kind %q", b.Kind)
	}
}

package domain

import (
	"strings"
	"time"
)

// Network is a mobile network an airtime request can target.
type Network string

// Supported networks, in menu order.
const (
	NetworkMTN     Network = "MTN"
	NetworkAirtel  Network = "AIRTEL"
	NetworkGlo     Network = "GLO"
	Network9Mobile Network = "9MOBILE"
)

// Networks lists every supported network in menu order.
var Networks = []Network{NetworkMTN, NetworkAirtel, NetworkGlo, Network9Mobile}

var networkLabels = map[Network]string{
	NetworkMTN:     "MTN",
	NetworkAirtel:  "Airtel",
	NetworkGlo:     "Glo",
	Network9Mobile: "9mobile",
}

// ParseNetwork resolves a network code, case-insensitively.
func ParseNetwork(raw string) (Network, bool) {
	candidate := Network(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := networkLabels[candidate]; !ok {
		return "", false
	}
	return candidate, true
}

// Label is the display name used on menu buttons.
func (n Network) Label() string {
	if label, ok := networkLabels[n]; ok {
		return label
	}
	return string(n)
}

const (
	// RequestStatusPending is the only status a request ever has; nothing fulfils requests.
	RequestStatusPending = "pending"

	// TransactionTypeAirtime tags transactions produced by the airtime flow.
	TransactionTypeAirtime = "airtime"
	// TransactionStatusCompleted is the default transaction status.
	TransactionStatusCompleted = "completed"

	// DemoPhoneNumber is recorded as the destination of every demo request.
	DemoPhoneNumber = "DEMO_PHONE"
)

// AirtimeRequest is an append-only record of a user's airtime request.
type AirtimeRequest struct {
	Reference   string    `bson:"reference" json:"reference"`
	UserID      int64     `bson:"user_id" json:"user_id"`
	Network     Network   `bson:"network" json:"network"`
	PhoneNumber string    `bson:"phone_number" json:"phone_number"`
	Amount      int64     `bson:"amount" json:"amount"`
	Status      string    `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Transaction is an append-only ledger entry used for aggregate reporting.
type Transaction struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	Type      string    `bson:"type" json:"type"`
	Amount    int64     `bson:"amount" json:"amount"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

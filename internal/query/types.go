package query

import "time"

// TradeStatusResponse is one row of the trade status projection. AsOf is the
// projection watermark: reads are eventually consistent with the engine.
type TradeStatusResponse struct {
	TradeID       string    `json:"trade_id"`
	State         string    `json:"state"`
	ProductType   string    `json:"product_type"`
	Parties       []string  `json:"parties"`
	EffectiveDate time.Time `json:"effective_date"`
	MaturityDate  time.Time `json:"maturity_date"`
	LastEventID   string    `json:"last_event_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	AsOf          time.Time `json:"as_of"`
}

// CashflowResponse is one row of the cashflow projection.
type CashflowResponse struct {
	EventID      string    `json:"event_id"`
	TradeID      string    `json:"trade_id"`
	TransferType string    `json:"transfer_type"`
	Direction    string    `json:"direction"`
	GrossAmount  int64     `json:"gross_amount"`
	NetAmount    int64     `json:"net_amount"`
	Currency     string    `json:"currency"`
	ValueDate    time.Time `json:"value_date"`
	Status       string    `json:"status"`
	AsOf         time.Time `json:"as_of"`
}

// ChainReport is the result of verifying a trade's snapshot chain against
// the persisted ledger.
type ChainReport struct {
	TradeID   string `json:"trade_id"`
	Snapshots int    `json:"snapshots"`
	Intact    bool   `json:"intact"`
	BrokenAt  string `json:"broken_at,omitempty"`
}

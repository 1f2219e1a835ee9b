package orders

type Status string

const (
	StatusPending Status = "pending"
	StatusHold    Status = "hold"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending: {StatusHold: true, StatusFailed: true},
	StatusHold:    {StatusPaid: true, StatusFailed: true},
	StatusPaid:    {},
	StatusFailed:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// SettlementStatus tracks payouts after delivery; it only moves forward.
type SettlementStatus string

const (
	SettlementNone    SettlementStatus = "unsettled"
	SettlementPartial SettlementStatus = "partially_settled"
	SettlementDone    SettlementStatus = "settled"
)

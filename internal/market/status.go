package market

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"  // terminal
	StatusDelivered Status = "DELIVERED" // terminal
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusAccepted: true, StatusRejected: true},
	StatusAccepted:  {StatusDelivered: true},
	StatusRejected:  {},
	StatusDelivered: {},
}

// CanTransition reports whether from -> to is a legal order transition.
// Re-applying an already applied transition is not legal.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ToStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

func ToDecision(s string) (Decision, bool) {
	d := Decision(s)
	return d, d == DecisionAccept || d == DecisionReject
}

package types

// Outcome is a typed, client-visible failure returned by handlers in place
// of control-flow panics. The dispatcher translates an Outcome into a named
// wire event for the originating connection; room state is unchanged.
type Outcome struct {
	Event  EventName
	Code   string
	Detail string
}

func (o *Outcome) Error() string { return o.Code }

// Client-semantic outcomes. Each maps 1:1 to a wire event the client
// already understands.
var (
	OutcomeInvalidGameCode   = &Outcome{Event: EventError, Code: "InvalidGameCode"}
	OutcomeCodeInUse         = &Outcome{Event: EventError, Code: "CodeInUse"}
	OutcomeRoomNotFound      = &Outcome{Event: EventError, Code: "RoomNotFound"}
	OutcomeRoomFull          = &Outcome{Event: EventError, Code: "RoomFull"}
	OutcomeUsernameRequired  = &Outcome{Event: EventError, Code: "UsernameRequired"}
	OutcomeNotInGame         = &Outcome{Event: EventError, Code: "NotInGame"}
	OutcomeOnlyHostCanStart  = &Outcome{Event: EventError, Code: "OnlyHostCanStart"}
	OutcomeOnlyHostCanEnd    = &Outcome{Event: EventError, Code: "OnlyHostCanEnd"}
	OutcomeGameNotInProgress = &Outcome{Event: EventError, Code: "GameNotInProgress"}
	OutcomeLateJoinBlocked   = &Outcome{Event: EventError, Code: "LateJoinBlocked"}
	OutcomeMalformed         = &Outcome{Event: EventError, Code: "MalformedPayload"}

	OutcomeAlreadyFound  = &Outcome{Event: EventWordAlreadyFound, Code: "AlreadyFound"}
	OutcomeNotOnBoard    = &Outcome{Event: EventWordNotOnBoard, Code: "NotOnBoard"}
	OutcomeWordTooShort  = &Outcome{Event: EventWordTooShort, Code: "WordTooShort"}
	OutcomeInappropriate = &Outcome{Event: EventWordRejected, Code: "InappropriateWord"}
)

// WithDetail returns a copy of o carrying a human-readable detail string.
func (o *Outcome) WithDetail(detail string) *Outcome {
	return &Outcome{Event: o.Event, Code: o.Code, Detail: detail}
}

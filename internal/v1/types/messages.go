package types

import "encoding/json"

// ActionName is an inbound wire action.
type ActionName string

// EventName is an outbound wire event.
type EventName string

// Inbound actions.
const (
	ActionCreateGame             ActionName = "createGame"
	ActionJoin                   ActionName = "join"
	ActionStartGame              ActionName = "startGame"
	ActionStartGameAck           ActionName = "startGameAck"
	ActionSubmitWord             ActionName = "submitWord"
	ActionChatMessage            ActionName = "chatMessage"
	ActionEndGame                ActionName = "endGame"
	ActionValidateWords          ActionName = "validateWords"
	ActionResetGame              ActionName = "resetGame"
	ActionCloseRoom              ActionName = "closeRoom"
	ActionGetActiveRooms         ActionName = "getActiveRooms"
	ActionLeaveRoom              ActionName = "leaveRoom"
	ActionPresenceUpdate         ActionName = "presenceUpdate"
	ActionPresenceHeartbeat      ActionName = "presenceHeartbeat"
	ActionPing                   ActionName = "ping"
	ActionSubmitWordVote         ActionName = "submitWordVote"
	ActionCreateTournament       ActionName = "createTournament"
	ActionStartTournamentRound   ActionName = "startTournamentRound"
	ActionGetTournamentStandings ActionName = "getTournamentStandings"
	ActionCancelTournament       ActionName = "cancelTournament"
)

// Outbound events.
const (
	EventJoined                  EventName = "joined"
	EventUpdateUsers             EventName = "updateUsers"
	EventActiveRooms             EventName = "activeRooms"
	EventStartGame               EventName = "startGame"
	EventTimeUpdate              EventName = "timeUpdate"
	EventWordAccepted            EventName = "wordAccepted"
	EventWordRejected            EventName = "wordRejected"
	EventWordAlreadyFound        EventName = "wordAlreadyFound"
	EventWordNotOnBoard          EventName = "wordNotOnBoard"
	EventWordTooShort            EventName = "wordTooShort"
	EventWordNeedsValidation     EventName = "wordNeedsValidation"
	EventWordValidatingWithAI    EventName = "wordValidatingWithAI"
	EventLiveAchievement         EventName = "liveAchievementUnlocked"
	EventUpdateLeaderboard       EventName = "updateLeaderboard"
	EventEndGame                 EventName = "endGame"
	EventShowValidation          EventName = "showValidation"
	EventValidationTimeout       EventName = "validationTimeoutStarted"
	EventValidatedScores         EventName = "validatedScores"
	EventValidationComplete      EventName = "validationComplete"
	EventAutoValidationOccurred  EventName = "autoValidationOccurred"
	EventChatMessage             EventName = "chatMessage"
	EventHostDisconnected        EventName = "hostDisconnected"
	EventHostTransferred         EventName = "hostTransferred"
	EventHostLeftRoomClosing     EventName = "hostLeftRoomClosing"
	EventPlayerDisconnected      EventName = "playerDisconnected"
	EventPlayerReconnected       EventName = "playerReconnected"
	EventPlayerLeft              EventName = "playerLeft"
	EventPlayerConnectionStatus  EventName = "playerConnectionStatusChanged"
	EventSessionMigrated         EventName = "sessionMigrated"
	EventSessionTakenOver        EventName = "sessionTakenOver"
	EventRateLimited             EventName = "rateLimited"
	EventError                   EventName = "error"
	EventWarning                 EventName = "warning"
	EventPong                    EventName = "pong"
	EventServerShutdown          EventName = "serverShutdown"
	EventTournamentCreated       EventName = "tournamentCreated"
	EventTournamentRoundStarting EventName = "tournamentRoundStarting"
	EventTournamentRoundComplete EventName = "tournamentRoundCompleted"
	EventTournamentComplete      EventName = "tournamentComplete"
	EventTournamentPlayerJoined  EventName = "tournamentPlayerJoined"
	EventTournamentPlayerLeft    EventName = "tournamentPlayerLeft"
)

// Envelope is the inbound wire frame. Payload stays raw until the
// dispatcher routes it to a handler that knows its concrete shape.
type Envelope struct {
	Action  ActionName      `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutEnvelope is the outbound wire frame.
type OutEnvelope struct {
	Event   EventName `json:"event"`
	Payload any       `json:"payload,omitempty"`
}

// --- Inbound payloads. Each variant carries exactly the fields its handler needs. ---

type CreateGamePayload struct {
	GameCode string `json:"gameCode"`
	Name     string `json:"name"`
	RoomName string `json:"roomName,omitempty"`
	Language string `json:"language,omitempty"`
	IsRanked bool   `json:"isRanked,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	AuthID   string `json:"authId,omitempty"`
}

type JoinPayload struct {
	GameCode string `json:"gameCode"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	AuthID   string `json:"authId,omitempty"`
}

type StartGamePayload struct {
	Grid          Grid `json:"grid"`
	TimerSeconds  int  `json:"timerSeconds"`
	MinWordLength int  `json:"minWordLength,omitempty"`
}

type StartGameAckPayload struct {
	MessageID string `json:"messageId"`
}

type SubmitWordPayload struct {
	Word       string `json:"word"`
	ComboLevel int    `json:"comboLevel,omitempty"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type ValidateWordsPayload struct {
	Validations []WordValidation `json:"validations"`
}

type WordValidation struct {
	Player   string `json:"player"`
	Word     string `json:"word"`
	Approved bool   `json:"approved"`
}

type PresenceUpdatePayload struct {
	Focused bool `json:"focused"`
	Idle    bool `json:"idle"`
}

type SubmitWordVotePayload struct {
	Word string `json:"word"`
	Vote bool   `json:"vote"`
}

type CreateTournamentPayload struct {
	Name      string `json:"name"`
	Rounds    int    `json:"rounds"`
	GameCodes []string `json:"gameCodes,omitempty"`
}

type TournamentRoundPayload struct {
	TournamentID string `json:"tournamentId"`
}

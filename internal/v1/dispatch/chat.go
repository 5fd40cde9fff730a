package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/types"
)

const (
	// Chat history is bounded by both message count and total bytes so a
	// chatty room cannot grow memory without bound.
	chatHistoryMaxMessages = 50
	chatHistoryMaxBytes    = 16 * 1024
)

// chatMessage is one sanitized chat entry.
type chatMessage struct {
	ID   string                `json:"id"`
	From types.ParticipantName `json:"from"`
	Text string                `json:"text"`
	At   time.Time             `json:"at"`
}

// chatHistory keeps a room's recent messages under the dual cap.
type chatHistory struct {
	messages []chatMessage
	bytes    int
}

func (h *chatHistory) append(msg chatMessage) {
	h.messages = append(h.messages, msg)
	h.bytes += len(msg.Text)
	for len(h.messages) > chatHistoryMaxMessages || h.bytes > chatHistoryMaxBytes {
		h.bytes -= len(h.messages[0].Text)
		h.messages = h.messages[1:]
	}
}

func (d *Dispatcher) handleChat(_ context.Context, connID types.ConnID, raw json.RawMessage) error {
	var p types.ChatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.OutcomeMalformed
	}
	b, err := d.bindingRoom(connID)
	if err != nil {
		return err
	}
	if d.store.Get(b.Room) == nil {
		return types.OutcomeRoomNotFound
	}

	text := game.SanitizeChat(p.Text)
	if text == "" {
		return nil
	}

	msg := chatMessage{
		ID:   uuid.NewString(),
		From: b.Participant,
		Text: text,
		At:   time.Now(),
	}

	d.chatMu.Lock()
	h, ok := d.chats[b.Room]
	if !ok {
		h = &chatHistory{}
		d.chats[b.Room] = h
	}
	h.append(msg)
	d.chatMu.Unlock()

	d.broadcast(b.Room, types.EventChatMessage, msg)
	return nil
}

// RecentChat returns a copy of the room's chat history, newest last.
func (d *Dispatcher) RecentChat(code types.RoomCode) []chatMessage {
	d.chatMu.Lock()
	defer d.chatMu.Unlock()
	h, ok := d.chats[code]
	if !ok {
		return nil
	}
	out := make([]chatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

func (d *Dispatcher) dropChat(code types.RoomCode) {
	d.chatMu.Lock()
	defer d.chatMu.Unlock()
	delete(d.chats, code)
}

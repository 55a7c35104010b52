package client

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/polysig-go/relay"
	"github.com/opd-ai/polysig-go/wire"
)

// RequestMeeting dials url and speaks the unencrypted meeting-point
// sub-protocol: it announces ownKey under room and returns every public key
// that has joined that room so far, including its own. The connection is
// opened and closed for this single request/response; it is unrelated to
// the session Noise channel a subsequent Connect establishes.
//
// Callers use this before any session exists, to discover participants'
// static public keys out-of-band (§6 meeting-point channel).
func RequestMeeting(url, room string, ownKey wire.PublicKey) (relay.MeetingResponse, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return relay.MeetingResponse{}, fmt.Errorf("client: failed to dial relay for meeting point: %w", err)
	}
	defer ws.Close()

	req := relay.MeetingRequest{Room: room, PublicKey: ownKey}
	payload, err := json.Marshal(req)
	if err != nil {
		return relay.MeetingResponse{}, fmt.Errorf("client: failed to marshal meeting request: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return relay.MeetingResponse{}, fmt.Errorf("client: failed to send meeting request: %w", err)
	}

	_, raw, err := ws.ReadMessage()
	if err != nil {
		return relay.MeetingResponse{}, fmt.Errorf("client: failed to read meeting response: %w", err)
	}
	var resp relay.MeetingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return relay.MeetingResponse{}, fmt.Errorf("client: failed to decode meeting response: %w", err)
	}
	return resp, nil
}

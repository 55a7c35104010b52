package relay

import (
	"encoding/json"
	"sync"

	"github.com/opd-ai/polysig-go/wire"
)

// MeetingRequest is the unencrypted out-of-band message a client sends
// before any Noise state exists, to discover the other participants
// currently waiting in the same named room.
type MeetingRequest struct {
	Room      string        `json:"room"`
	PublicKey wire.PublicKey `json:"public_key"`
}

// MeetingResponse lists every public key that has joined Room so far,
// including the requester's own.
type MeetingResponse struct {
	Room    string           `json:"room"`
	Members []wire.PublicKey `json:"members"`
}

// meetingPoint is a trivial rendezvous table: participants who don't yet
// know each other's static public keys announce themselves under a shared
// room name and are handed back the room's current membership.
type meetingPoint struct {
	mu    sync.Mutex
	rooms map[string][]wire.PublicKey
}

func newMeetingPoint() *meetingPoint {
	return &meetingPoint{rooms: make(map[string][]wire.PublicKey)}
}

func (m *meetingPoint) join(req MeetingRequest) MeetingResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.rooms[req.Room]
	for _, existing := range members {
		if existing == req.PublicKey {
			return MeetingResponse{Room: req.Room, Members: members}
		}
	}
	members = append(members, req.PublicKey)
	m.rooms[req.Room] = members
	return MeetingResponse{Room: req.Room, Members: members}
}

// decodeMeetingRequest reports whether raw is a meeting-point request
// rather than a wire-framed message. The meeting-point sub-protocol is
// detected structurally: a wire frame is a deflate stream (its
// identity/version header is inside the compressed data), which does not
// decode as a JSON object naming a room.
func decodeMeetingRequest(raw []byte) (MeetingRequest, bool) {
	var req MeetingRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Room == "" {
		return MeetingRequest{}, false
	}
	return req, true
}

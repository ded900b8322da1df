package router

import (
	"encoding/json"
	"time"
)

// Route classifies one inbound frame. It never fails: frames that cannot be
// parsed come back as KindDropped.
func Route(data []byte, receivedAt time.Time) Message {
	if string(data) == FramePing {
		return Message{Kind: KindPing, ReceivedAt: receivedAt}
	}

	name, payload, ok := ParseEvent(data)
	if !ok {
		return Message{Kind: KindDropped, ReceivedAt: receivedAt}
	}

	msg := Message{
		Event:      name,
		Payload:    payload,
		ReceivedAt: receivedAt,
	}

	switch name {
	case EventHPUpdate:
		var hp HPUpdate
		if len(payload) == 0 || json.Unmarshal(payload, &hp) != nil {
			msg.Kind = KindDropped
			return msg
		}
		msg.Kind = KindHPUpdate
		msg.HP = &hp
	case EventBattleStep:
		msg.Kind = KindBattleStep
	case EventLeaderboard:
		msg.Kind = KindLeaderboard
	default:
		msg.Kind = KindUnknown
	}

	return msg
}

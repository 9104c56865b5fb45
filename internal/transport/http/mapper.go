package http

import (
	"encoding/json"

	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
	"github.com/vovakirdan/roomrelay/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeRoomCreate:
		return &core.Command{Kind: core.CommandCreateRoom}, nil
	case proto.InboundTypeRoomJoin:
		var join proto.JoinData
		if err := decodeData(inbound.Data, &join); err != nil {
			return nil, invalidPayload()
		}
		return &core.Command{
			Kind:     core.CommandJoinRoom,
			Room:     join.Code,
			Nickname: join.Nickname,
		}, nil
	case proto.InboundTypeChatSend:
		var msg proto.SendData
		if err := decodeData(inbound.Data, &msg); err != nil {
			return nil, invalidPayload()
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Message: core.SendRequest{
				RoomCode: msg.RoomCode,
				Sender:   msg.Sender,
				Content:  msg.Content,
			},
		}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidRequest, Msg: "unknown message type"}
	}
}

// decodeData treats a missing payload as an empty object.
func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func invalidPayload() *proto.Error {
	return &proto.Error{Code: core.ErrCodeInvalidRequest, Msg: "invalid payload"}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: event.Name(),
		Data:  event.Payload(),
	}
}

func ackFromResult(id json.RawMessage, res core.Result) proto.Outbound {
	ack := proto.Ack{OK: res.OK()}
	if res.Err != nil {
		ack.Error = res.Err.Message
		ack.Code = res.Err.Code
	}
	if res.Room != nil {
		room := roomToProto(res.Room)
		ack.Room = &room
	}
	if res.Message != nil {
		msg := res.Message.Proto()
		ack.Message = &msg
	}
	return proto.Outbound{Type: proto.OutboundTypeAck, ID: id, Data: ack}
}

func ackFromError(id json.RawMessage, perr *proto.Error) proto.Outbound {
	return proto.Outbound{
		Type: proto.OutboundTypeAck,
		ID:   id,
		Data: proto.Ack{OK: false, Error: perr.Msg, Code: perr.Code},
	}
}

func roomToProto(room *store.Room) proto.Room {
	return proto.Room{
		ID:        room.ID,
		Code:      room.Code,
		CreatedAt: room.CreatedAt,
	}
}

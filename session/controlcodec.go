package session

import (
	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/spawn"
	"github.com/duskproto/session/wire"
)

// The functions in this file build and parse the fixed control
// messages of section 6's wire table (plus the supplemental ids
// wire/ids.go defines) through the same registry-driven codec a user
// RPC uses, rather than one-off byte layouts per message.

func clientConnectedMessage(registry *rpcproto.Registry, id wire.ClientId) (Message, error) {
	payload, err := EncodeArgs(registry, wire.RpcClientConnected, []wire.Encodable{&id})
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcClientConnected, CallerId: wire.ClientIdNone, CalleeId: wire.ClientIdNone, Payload: payload}, nil
}

func decodeClientConnected(registry *rpcproto.Registry, payload []byte) (wire.ClientId, error) {
	args, err := DecodeArgs(registry, wire.RpcClientConnected, payload)
	if err != nil {
		return wire.ClientIdNone, err
	}
	return *(args[0].(*wire.ClientId)), nil
}

func localClientConnectedMessage(registry *rpcproto.Registry, a ClientIdAssignment) (Message, error) {
	secret, maxClients := wire.U32(a.ClientSecret), wire.U32(a.MaxClients)
	payload, err := EncodeArgs(registry, wire.RpcLocalClientConnected, []wire.Encodable{
		&a.AssignedId, &a.AuthorityId, &secret, &maxClients,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcLocalClientConnected, CallerId: wire.ClientIdNone, CalleeId: a.AssignedId, Payload: payload}, nil
}

func decodeLocalClientConnected(registry *rpcproto.Registry, payload []byte) (ClientIdAssignment, error) {
	args, err := DecodeArgs(registry, wire.RpcLocalClientConnected, payload)
	if err != nil {
		return ClientIdAssignment{}, err
	}
	return ClientIdAssignment{
		AssignedId:   *(args[0].(*wire.ClientId)),
		AuthorityId:  *(args[1].(*wire.ClientId)),
		ClientSecret: uint32(*(args[2].(*wire.U32))),
		MaxClients:   int(*(args[3].(*wire.U32))),
	}, nil
}

func clientDisconnectedMessage(registry *rpcproto.Registry, id wire.ClientId) (Message, error) {
	payload, err := EncodeArgs(registry, wire.RpcClientDisconnected, []wire.Encodable{&id})
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcClientDisconnected, CallerId: wire.ClientIdNone, CalleeId: wire.ClientIdNone, Payload: payload}, nil
}

func decodeClientDisconnected(registry *rpcproto.Registry, payload []byte) (wire.ClientId, error) {
	args, err := DecodeArgs(registry, wire.RpcClientDisconnected, payload)
	if err != nil {
		return wire.ClientIdNone, err
	}
	return *(args[0].(*wire.ClientId)), nil
}

func spawnMessage(registry *rpcproto.Registry, msg spawn.SpawnMessage) (Message, error) {
	tag := wire.U8(msg.TypeTag)
	payload, err := EncodeArgs(registry, wire.RpcSpawn, []wire.Encodable{&tag, &msg.Id, &msg.Owner})
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcSpawn, CallerId: msg.Owner, CalleeId: wire.ClientIdNone, Payload: payload}, nil
}

func decodeSpawn(registry *rpcproto.Registry, payload []byte) (spawn.SpawnMessage, error) {
	args, err := DecodeArgs(registry, wire.RpcSpawn, payload)
	if err != nil {
		return spawn.SpawnMessage{}, err
	}
	return spawn.SpawnMessage{
		TypeTag: spawn.TypeTag(*(args[0].(*wire.U8))),
		Id:      *(args[1].(*wire.NetworkId)),
		Owner:   *(args[2].(*wire.ClientId)),
	}, nil
}

func despawnMessage(registry *rpcproto.Registry, msg spawn.DespawnMessage) (Message, error) {
	payload, err := EncodeArgs(registry, wire.RpcDespawn, []wire.Encodable{&msg.Id})
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcDespawn, CallerId: wire.ClientIdNone, CalleeId: wire.ClientIdNone, Payload: payload}, nil
}

func decodeDespawn(registry *rpcproto.Registry, payload []byte) (spawn.DespawnMessage, error) {
	args, err := DecodeArgs(registry, wire.RpcDespawn, payload)
	if err != nil {
		return spawn.DespawnMessage{}, err
	}
	return spawn.DespawnMessage{Id: *(args[0].(*wire.NetworkId))}, nil
}

func hostMigrationMessage(registry *rpcproto.Registry, newAuthority wire.ClientId) (Message, error) {
	payload, err := EncodeArgs(registry, wire.RpcHostMigration, []wire.Encodable{&newAuthority})
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcHostMigration, CallerId: wire.ClientIdNone, CalleeId: wire.ClientIdNone, Payload: payload}, nil
}

func decodeHostMigration(registry *rpcproto.Registry, payload []byte) (wire.ClientId, error) {
	args, err := DecodeArgs(registry, wire.RpcHostMigration, payload)
	if err != nil {
		return wire.ClientIdNone, err
	}
	return *(args[0].(*wire.ClientId)), nil
}

// authorityChangedMessage builds the correction message section
// 4.5.2 requires a relay/server to send back to a caller whose RPC
// was dropped for a permission violation, naming the authority the
// caller should have addressed instead.
func authorityChangedMessage(registry *rpcproto.Registry, to wire.ClientId, authority wire.ClientId) (Message, error) {
	payload, err := EncodeArgs(registry, wire.RpcAuthorityChanged, []wire.Encodable{&authority})
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcAuthorityChanged, CallerId: wire.ClientIdNone, CalleeId: to, Payload: payload}, nil
}

func decodeAuthorityChanged(registry *rpcproto.Registry, payload []byte) (wire.ClientId, error) {
	args, err := DecodeArgs(registry, wire.RpcAuthorityChanged, payload)
	if err != nil {
		return wire.ClientIdNone, err
	}
	return *(args[0].(*wire.ClientId)), nil
}

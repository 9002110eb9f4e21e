package rpcproto

import "github.com/duskproto/session/wire"

// RegisterControlMessages installs the Definition for every reserved
// control RpcId, per section 6's wire table plus the supplemental ids
// wire/ids.go defines (AuthorityChanged, Redirect, AdminCommand).
// Permission on a control Definition is descriptive only: control ids
// never pass through Enforce/ResolveRelayAction (those apply to user
// RPCs, id >= wire.RpcIdReservedCeiling); a control message's caller
// eligibility is instead enforced procedurally by whichever endpoint
// constructs it (only the authority ever builds a Spawn, only a relay
// ever builds a HostMigration, and so on).
//
// NewRegistry calls this automatically: the control table is a fixed
// part of the wire protocol, not something an application opts into.
func RegisterControlMessages(r *Registry) {
	clientId := func() wire.Encodable { return new(wire.ClientId) }
	networkId := func() wire.Encodable { return new(wire.NetworkId) }
	u8 := func() wire.Encodable { return new(wire.U8) }
	u16 := func() wire.Encodable { return new(wire.U16) }
	u32 := func() wire.Encodable { return new(wire.U32) }
	u64 := func() wire.Encodable { return new(wire.U64) }
	boolean := func() wire.Encodable { return new(wire.Bool) }
	stringId := func() wire.Encodable { return new(wire.StringId) }

	r.Register(wire.RpcClientConnected, Definition{
		Permission:           AuthorityToClients,
		ArgFactories:         []func() wire.Encodable{clientId},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcLocalClientConnected, Definition{
		Permission: AuthorityToClients,
		ArgFactories: []func() wire.Encodable{
			clientId, // assignedId
			clientId, // authorityId
			u32,      // clientSecret
			u32,      // maxClients
		},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcClientDisconnected, Definition{
		Permission:           AuthorityToClients,
		ArgFactories:         []func() wire.Encodable{clientId},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcSpawn, Definition{
		Permission: AuthorityToClients,
		ArgFactories: []func() wire.Encodable{
			u8,       // typeTag
			networkId,
			clientId, // owner
		},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcDespawn, Definition{
		Permission:           AuthorityToClients,
		ArgFactories:         []func() wire.Encodable{networkId},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcHostMigration, Definition{
		Permission:           AnyToAll,
		ArgFactories:         []func() wire.Encodable{clientId}, // newAuthorityId
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcPing, Definition{
		Permission: AnyToAll,
		ArgFactories: []func() wire.Encodable{
			clientId, // source
			clientId, // target
			u64,      // sendTime, millis since epoch
			u64,      // receiveTime
			u64,      // responseTime
			boolean,  // resolved
			boolean,  // failed
		},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcAuthorityChanged, Definition{
		Permission:           AnyToAll,
		ArgFactories:         []func() wire.Encodable{clientId}, // corrected authorityId
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcRedirect, Definition{
		Permission: AuthorityToClients,
		ArgFactories: []func() wire.Encodable{
			stringId, // new host address
			u16,      // tcp port
			u16,      // udp port
		},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
	r.Register(wire.RpcAdminCommand, Definition{
		Permission: AuthorityToClients,
		ArgFactories: []func() wire.Encodable{
			u8,       // command code
			clientId, // affected client, or ClientIdNone
			stringId, // free-form reason
		},
		CallerInjectionIndex: NoInjection,
		CalleeInjectionIndex: NoInjection,
	})
}

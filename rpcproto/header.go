// Package rpcproto implements the RPC header layout, the table-driven
// protocol registry that replaces runtime reflection over argument
// arrays, and the permission enforcement rules for who may call whom.
package rpcproto

import (
	"io"

	"github.com/duskproto/session/wire"
)

// Header is the fixed prefix of every RPC message:
// [u32 rpcId][u32 callerId][u32 calleeId][u32 targetNetworkId].
// For reserved ids (id.IsControl()) the target field is omitted on
// the wire and TargetNetworkId reads back as wire.NetworkIdNone.
type Header struct {
	RpcId           wire.RpcId
	CallerId        wire.ClientId
	CalleeId        wire.ClientId
	TargetNetworkId wire.NetworkId
}

// EncodedLen reports the on-wire size of h.
func (h Header) EncodedLen() int {
	n := 4 + 4 + 4
	if !h.RpcId.IsControl() {
		n += 4
	}
	return n
}

// Write encodes h, per section 3's "for reserved rpcId < 30 the
// target field is omitted".
func (h Header) Write(w io.Writer) error {
	if err := h.RpcId.Write(w); err != nil {
		return err
	}
	if err := h.CallerId.Write(w); err != nil {
		return err
	}
	if err := h.CalleeId.Write(w); err != nil {
		return err
	}
	if h.RpcId.IsControl() {
		return nil
	}
	return h.TargetNetworkId.Write(w)
}

// ReadHeader decodes a Header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := h.RpcId.Read(r); err != nil {
		return Header{}, err
	}
	if err := h.CallerId.Read(r); err != nil {
		return Header{}, err
	}
	if err := h.CalleeId.Read(r); err != nil {
		return Header{}, err
	}
	if h.RpcId.IsControl() {
		return h, nil
	}
	if err := h.TargetNetworkId.Read(r); err != nil {
		return Header{}, err
	}
	return h, nil
}

package session

import (
	"bytes"
	"io"
	"time"

	"github.com/duskproto/session/packet"
	"github.com/duskproto/session/ping"
	"github.com/duskproto/session/rpcproto"
	"github.com/duskproto/session/transform"
	"github.com/duskproto/session/wire"
)

// boundedWriter is an io.Writer over a fixed-length slice that fails
// instead of growing, used to write a Header plus a pre-encoded
// payload directly into a Packet.Reserve region without risking an
// allocation that would break the region's aliasing into the
// Packet's backing buffer.
type boundedWriter struct {
	buf []byte
	off int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.off:], p)
	w.off += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// EncodeArgs serializes args as msg's Payload, using registry's
// Definition for rpcId. It is the encode half of the table-driven
// codec every control and user message flows through.
func EncodeArgs(registry *rpcproto.Registry, rpcId wire.RpcId, args []wire.Encodable) ([]byte, error) {
	var buf bytes.Buffer
	if err := registry.EncodeArgs(rpcId, args, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeArgs parses payload back into typed args using registry's
// Definition for rpcId, the decode half of the same codec.
func DecodeArgs(registry *rpcproto.Registry, rpcId wire.RpcId, payload []byte) ([]wire.Encodable, error) {
	return registry.DecodeArgs(rpcId, bytes.NewReader(payload))
}

// writeIntoPacket reserves a region in pkt sized for hdr plus
// msg.Payload and writes both, per section 3's RPC header + argument
// framing.
func writeIntoPacket(pkt *packet.Packet, hdr rpcproto.Header, payload []byte) error {
	n := hdr.EncodedLen() + len(payload)
	region, err := pkt.Reserve(n)
	if err != nil {
		return err
	}
	w := &boundedWriter{buf: region}
	if err := hdr.Write(w); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// parseRpcMessage splits one message slice (as produced by
// packet.Packet.Messages or packet.ParseMessages) into its
// rpcproto.Header and the remaining, still-encoded argument bytes.
func parseRpcMessage(raw []byte) (rpcproto.Header, []byte, error) {
	r := bytes.NewReader(raw)
	hdr, err := rpcproto.ReadHeader(r)
	if err != nil {
		return rpcproto.Header{}, nil, err
	}
	rest := raw[len(raw)-r.Len():]
	return hdr, rest, nil
}

// reliableTransport reports whether msg must be sent over the stream
// transport: every control id always is (section 4.5's "control
// messages... are always delivered over the stream transport"); a
// user RPC honors its own Unreliable flag.
func reliableTransport(msg Message) bool {
	if msg.RpcId.IsControl() {
		return true
	}
	return !msg.Unreliable
}

// millis converts t to milliseconds since the Unix epoch, the wire
// representation ping.Request timestamps use.
func millis(t time.Time) wire.U64 {
	if t.IsZero() {
		return 0
	}
	return wire.U64(t.UnixMilli())
}

func fromMillis(m wire.U64) time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m))
}

// encodePingPayload serializes a ping.Request as an RpcPing argument
// list.
func encodePingPayload(registry *rpcproto.Registry, req ping.Request) ([]byte, error) {
	source, target := req.Source, req.Target
	resolved, failed := wire.Bool(req.Resolved), wire.Bool(req.Failed)
	sendTime, receiveTime, responseTime := millis(req.SendTime), millis(req.ReceiveTime), millis(req.ResponseTime)
	return EncodeArgs(registry, wire.RpcPing, []wire.Encodable{
		&source, &target, &sendTime, &receiveTime, &responseTime, &resolved, &failed,
	})
}

// pingMessage builds the outbound RpcPing Message for one leg of
// req's round trip (the initial request or the target's echo), read
// by whichever side's CalleeId names it.
func pingMessage(registry *rpcproto.Registry, req ping.Request) (Message, error) {
	payload, err := encodePingPayload(registry, req)
	if err != nil {
		return Message{}, err
	}
	return Message{RpcId: wire.RpcPing, CallerId: req.Source, CalleeId: req.Target, Payload: payload}, nil
}

// ingestInto feeds data into pkt, and for each fully-ingested packet
// that passes validate, runs it through pipeline's receive transforms,
// reparses the result into individual RPC messages, and invokes
// onMessage for each. It loops until every byte of data has been
// consumed, since a single read can contain more than one packet.
func ingestInto(pkt *packet.Packet, pipeline *transform.Pipeline, data []byte, validate func(packet.Header) bool, onMessage func(rpcproto.Header, []byte) error) error {
	offset := 0
	for offset < len(data) {
		n, err := pkt.Ingest(data, offset)
		if err != nil {
			return err
		}
		offset += n

		if !pkt.Complete() {
			if n == 0 {
				break
			}
			continue
		}

		hdr := pkt.Header
		raw := append([]byte(nil), pkt.RawBytes()...)
		pkt.ResetIngest()

		if validate != nil && !validate(hdr) {
			continue
		}

		transformed, err := pipeline.ApplyReceive(raw)
		if err != nil {
			continue
		}
		_, msgs, err := packet.ParseMessages(transformed)
		if err != nil {
			continue
		}
		for _, m := range msgs {
			rpcHdr, payload, err := parseRpcMessage(m)
			if err != nil {
				continue
			}
			onMessage(rpcHdr, payload)
		}
	}
	return nil
}

// decodePingPayload is the inverse of encodePingPayload.
func decodePingPayload(registry *rpcproto.Registry, payload []byte) (ping.Request, error) {
	args, err := DecodeArgs(registry, wire.RpcPing, payload)
	if err != nil {
		return ping.Request{}, err
	}
	return ping.Request{
		Source:       *(args[0].(*wire.ClientId)),
		Target:       *(args[1].(*wire.ClientId)),
		SendTime:     fromMillis(*(args[2].(*wire.U64))),
		ReceiveTime:  fromMillis(*(args[3].(*wire.U64))),
		ResponseTime: fromMillis(*(args[4].(*wire.U64))),
		Resolved:     bool(*(args[5].(*wire.Bool))),
		Failed:       bool(*(args[6].(*wire.Bool))),
	}, nil
}

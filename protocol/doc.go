// Package protocol defines the control-token vocabulary shared by both peers
// of a secure socket session.
//
// A control token is plain text embedded in the decrypted payload stream:
//
//	<start><comm_code><sep><wire_token>[<sep><argument>]<end>
//
// With the defaults this looks like "[Xk3...::NEWLINE]" for the end of a
// message or "[Xk3...::IN::Name:]" for an input request. The comm code is a
// random shared secret, so payload bytes that merely look like a token are
// never mistaken for one.
//
// Both peers must hold byte-identical configuration. Distribute it out of
// band with [Protocol.Serialize] (JSON) or [Protocol.MarshalBinary] (CBOR):
//
//	p, err := protocol.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	data, _ := p.Serialize()
//
//	// on the other peer
//	q, err := protocol.Deserialize(data)
//
// Construction diagnostics are written to the logrus standard logger.
package protocol

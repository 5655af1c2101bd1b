// Package protocol owns the message catalog and packet classification.
//
// Ownership boundary:
// - message identifiers and the needs-ack rule
// - per-message payload encode/decode
// - classification of a datagram into ack / control / audio / error
//
// Framing and CRC live in the frame subpackage; sequencing, retransmission
// and fragment reassembly live in the session subpackage.
package protocol

// Package jka holds what this observer shares with the game-protocol layers
// downstream: the Huffman codec contract and the connectionless-envelope
// helpers. Payload decoding itself happens outside this repository.
package jka

import "bytes"

// DefaultPort is the default Jedi Academy server port.
const DefaultPort = 29070

// connlessPrefix marks a connectionless packet (queries and handshakes).
// Everything else on the wire is connected netchan traffic.
var connlessPrefix = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// Codec is the protocol's shared Huffman codec. One instance is built at
// program start and injected into every consumer; it is immutable afterwards,
// so concurrent use needs no synchronization.
type Codec interface {
	Compress(src []byte) []byte
	Decompress(src []byte, maxLen int) ([]byte, error)
}

// IsConnless reports whether data carries the connectionless packet prefix.
func IsConnless(data []byte) bool {
	return bytes.HasPrefix(data, connlessPrefix)
}

// ConnlessCommand returns the command token of a connectionless packet
// ("getstatus", "statusResponse", ...), or "" if data is not connectionless.
// The token ends at the first space, newline, or NUL.
func ConnlessCommand(data []byte) string {
	if !IsConnless(data) {
		return ""
	}
	body := data[len(connlessPrefix):]
	end := len(body)
	for i, b := range body {
		if b == ' ' || b == '\n' || b == '\r' || b == 0 {
			end = i
			break
		}
	}
	return string(body[:end])
}

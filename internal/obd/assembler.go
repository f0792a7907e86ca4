package obd

import "bytes"

// ChunkedResponse is a completed response with fragment boundaries preserved.
// Chunks concatenated in order always equal Data byte-for-byte; the assembler
// maintains that as an invariant, including for zero-length fragments.
type ChunkedResponse struct {
	Data   []byte
	Chunks [][]byte
}

// assembler accumulates notification fragments into one logical response,
// framed by the ELM327 prompt byte. When keepChunks is set, every raw
// fragment is also recorded individually.
type assembler struct {
	data       []byte
	chunks     [][]byte
	keepChunks bool
	done       bool
}

func newAssembler(keepChunks bool) *assembler {
	return &assembler{keepChunks: keepChunks}
}

// append adds one fragment and reports whether the prompt byte has been seen.
// Only the newly appended region is scanned, so reassembly stays linear in
// the response size. Bytes after the prompt in the same fragment are
// discarded: the prompt ends the transaction.
func (a *assembler) append(frag []byte) bool {
	if a.done {
		return true
	}

	idx := bytes.IndexByte(frag, promptByte)
	if idx < 0 {
		a.data = append(a.data, frag...)
		if a.keepChunks {
			// Zero-length notifications still count as chunks; some
			// adapters emit empty packets mid-response.
			a.chunks = append(a.chunks, append([]byte(nil), frag...))
		}
		return false
	}

	a.data = append(a.data, frag[:idx]...)
	if a.keepChunks && idx > 0 {
		// The trailing fragment is truncated at the prompt; a fragment that
		// carries only the prompt byte contributes no chunk.
		a.chunks = append(a.chunks, append([]byte(nil), frag[:idx]...))
	}
	a.done = true
	return true
}

// payload returns everything received before the prompt byte.
func (a *assembler) payload() []byte {
	return a.data
}

// chunked returns the completed response with fragment boundaries.
func (a *assembler) chunked() *ChunkedResponse {
	return &ChunkedResponse{Data: a.data, Chunks: a.chunks}
}

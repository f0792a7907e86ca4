package obd

import (
	"bytes"
	"testing"
)

func TestAssemblerFramingAcrossArbitrarySplits(t *testing.T) {
	payload := []byte("41 0C 1A F8\r41 0D 32\r")
	wire := append(append([]byte(nil), payload...), promptByte)

	// Every two-fragment split of the wire bytes must produce the same payload.
	for cut := 0; cut <= len(wire); cut++ {
		a := newAssembler(false)
		done := a.append(wire[:cut])
		if cut <= len(payload) {
			if done {
				t.Fatalf("cut %d: complete before prompt byte", cut)
			}
			done = a.append(wire[cut:])
		}
		if !done {
			t.Fatalf("cut %d: not complete after prompt byte", cut)
		}
		if !bytes.Equal(a.payload(), payload) {
			t.Errorf("cut %d: payload = %q, want %q", cut, a.payload(), payload)
		}
	}
}

func TestAssemblerDiscardsBytesAfterPrompt(t *testing.T) {
	a := newAssembler(false)
	if !a.append([]byte("OK>trailing garbage")) {
		t.Fatal("append() = false, want complete")
	}
	if got := string(a.payload()); got != "OK" {
		t.Errorf("payload = %q, want OK", got)
	}
	// A fragment after completion changes nothing.
	if !a.append([]byte("more")) {
		t.Error("append() after completion should stay complete")
	}
	if got := string(a.payload()); got != "OK" {
		t.Errorf("payload after late fragment = %q, want OK", got)
	}
}

func TestAssemblerChunksEqualData(t *testing.T) {
	a := newAssembler(true)
	frags := [][]byte{
		[]byte("43 01 33\r"),
		{}, // adapters emit empty notification packets; they must survive
		[]byte("43 00 00\r"),
		[]byte(">"),
	}
	for i, f := range frags {
		done := a.append(f)
		if done != (i == len(frags)-1) {
			t.Fatalf("fragment %d: done = %v", i, done)
		}
	}

	resp := a.chunked()
	if len(resp.Chunks) != 3 {
		t.Fatalf("len(Chunks) = %d, want 3 (prompt-only fragment contributes none)", len(resp.Chunks))
	}
	if len(resp.Chunks[1]) != 0 {
		t.Errorf("Chunks[1] = %x, want empty chunk preserved", resp.Chunks[1])
	}
	if !bytes.HasSuffix(resp.Chunks[0], []byte("\r")) {
		t.Errorf("Chunks[0] = %q, trailing CR must be preserved", resp.Chunks[0])
	}

	var joined []byte
	for _, c := range resp.Chunks {
		joined = append(joined, c...)
	}
	if !bytes.Equal(joined, resp.Data) {
		t.Errorf("chunks concatenated = %x, data = %x", joined, resp.Data)
	}
}

func TestAssemblerTrailingChunkTruncatedAtPrompt(t *testing.T) {
	a := newAssembler(true)
	a.append([]byte("41 05 "))
	a.append([]byte("7B>junk"))

	resp := a.chunked()
	if want := "41 05 7B"; string(resp.Data) != want {
		t.Errorf("Data = %q, want %q", resp.Data, want)
	}
	if len(resp.Chunks) != 2 {
		t.Fatalf("len(Chunks) = %d, want 2", len(resp.Chunks))
	}
	if string(resp.Chunks[1]) != "7B" {
		t.Errorf("Chunks[1] = %q, want truncated %q", resp.Chunks[1], "7B")
	}

	var joined []byte
	for _, c := range resp.Chunks {
		joined = append(joined, c...)
	}
	if !bytes.Equal(joined, resp.Data) {
		t.Errorf("chunks concatenated = %x, data = %x", joined, resp.Data)
	}
}

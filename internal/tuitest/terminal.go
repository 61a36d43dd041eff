package tuitest

import (
	"bytes"
	"io"
)

// probe is a terminal query a TUI library may send at startup, with the
// reply a real terminal would give. Without replies the program stalls.
type probe struct {
	query []byte
	reply []byte
}

var probes = []probe{
	{query: []byte("\x1b[6n"), reply: []byte("\x1b[1;1R")},
	{query: []byte("\x1b]10;?\x07"), reply: []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{query: []byte("\x1b]10;?\x1b\\"), reply: []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{query: []byte("\x1b]11;?\x07"), reply: []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{query: []byte("\x1b]11;?\x1b\\"), reply: []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

type terminalResponder struct {
	w   io.Writer
	buf []byte
}

func newTerminalResponder(w io.Writer) *terminalResponder {
	return &terminalResponder{w: w, buf: make([]byte, 0, 128)}
}

// Process scans a chunk of program output for probes and answers them.
func (tr *terminalResponder) Process(chunk []byte) {
	tr.buf = append(tr.buf, chunk...)
	for tr.answerNext() {
	}
	// Keep a small tail so a probe split across reads is still seen.
	if len(tr.buf) > 256 {
		tr.buf = tr.buf[len(tr.buf)-64:]
	}
}

// answerNext replies to the earliest probe in the buffer and drops
// everything up to its end.
func (tr *terminalResponder) answerNext() bool {
	first, at := -1, -1
	for i, p := range probes {
		idx := bytes.Index(tr.buf, p.query)
		if idx >= 0 && (at < 0 || idx < at) {
			first, at = i, idx
		}
	}
	if first < 0 {
		return false
	}
	p := probes[first]
	tr.buf = tr.buf[at+len(p.query):]
	_, _ = tr.w.Write(p.reply)
	return true
}

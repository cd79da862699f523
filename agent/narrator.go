// Progress narration for streamed responses.
//
// Narration is presentation only: it mirrors the stream to a writer at
// bounded frequency so a human can follow a long generation. It never
// affects the accumulated message, and a nil narrator is a no-op, which is
// how tests and quiet mode run.

package agent

import (
	"fmt"
	"io"
)

// argProgressInterval is how many tool-argument characters arrive between
// progress lines during long generations.
const argProgressInterval = 500

type narrator struct {
	w             io.Writer
	inReasoning   bool
	inContent     bool
	lastToolIndex int
	argChars      map[int]int // per-slot running argument length
	argReported   map[int]int // per-slot chars already reported
}

func newNarrator(w io.Writer) *narrator {
	if w == nil {
		return nil
	}
	return &narrator{
		w:             w,
		lastToolIndex: -1,
		argChars:      make(map[int]int),
		argReported:   make(map[int]int),
	}
}

func (n *narrator) reasoningFragment(s string) {
	if n == nil || s == "" {
		return
	}
	if !n.inReasoning {
		fmt.Fprintf(n.w, "\n--- reasoning ---\n")
		n.inReasoning = true
	}
	fmt.Fprint(n.w, s)
}

func (n *narrator) contentFragment(s string) {
	if n == nil || s == "" {
		return
	}
	if !n.inContent {
		n.closeSection()
		fmt.Fprintf(n.w, "\n--- response ---\n")
		n.inContent = true
	}
	fmt.Fprint(n.w, s)
}

func (n *narrator) toolFragment(index int, name, args string) {
	if n == nil {
		return
	}
	if index != n.lastToolIndex && name != "" {
		n.closeSection()
		n.inContent = false
		fmt.Fprintf(n.w, "\npreparing tool call: %s\n", name)
		n.lastToolIndex = index
	}
	if args == "" {
		return
	}
	n.argChars[index] += len(args)
	if n.argChars[index]-n.argReported[index] >= argProgressInterval {
		n.argReported[index] = n.argChars[index]
		fmt.Fprintf(n.w, "  generating arguments... %d chars\n", n.argChars[index])
	}
}

func (n *narrator) droppedSlot(name string) {
	if n == nil {
		return
	}
	// A tool call without an id cannot be answered with a result turn; the
	// stream produced it malformed. Surface it rather than losing it silently.
	fmt.Fprintf(n.w, "\nwarning: discarding tool call %q streamed without an id\n", name)
}

func (n *narrator) streamDone() {
	if n == nil {
		return
	}
	n.closeSection()
	n.inContent = false
	n.lastToolIndex = -1
}

func (n *narrator) closeSection() {
	if n.inReasoning || n.inContent {
		fmt.Fprintln(n.w)
		n.inReasoning = false
	}
}

// Package reassembly rebuilds messages and control events from decrypted
// chunk plaintext that arrives in arbitrary fragments.
//
// The tokenizer only treats a span as a control token candidate once it has
// seen the full marker (start delimiter, comm code, separator) and a
// following end delimiter. Anything else, including text that merely looks
// like a token, is literal payload. An incomplete token at the tail of the
// buffer is held until more bytes arrive.
package reassembly

import (
	"bytes"
	"fmt"

	"github.com/opd-ai/securesocket/protocol"
	"github.com/sirupsen/logrus"
)

// Item is one completed unit of the inbound stream: either a message (Text,
// with any deferred events that preceded its end token) or a single
// immediate control event.
type Item struct {
	Text    []byte
	Event   *protocol.ControlEvent
	Events  []protocol.ControlEvent
	Partial bool // trailing fragment flushed by All without an end token
}

// IsEvent reports whether the item is an immediate control event.
func (i Item) IsEvent() bool { return i.Event != nil }

func (i Item) String() string {
	if i.IsEvent() {
		return i.Event.String()
	}
	if i.Partial {
		return fmt.Sprintf("Partial(%q)", i.Text)
	}
	return fmt.Sprintf("Message(%q)", i.Text)
}

// Reassembler consumes plaintext incrementally. It is owned by a single
// reader and is not safe for concurrent use.
type Reassembler struct {
	proto  *protocol.Protocol
	marker []byte
	end    []byte

	pending []byte // bytes not yet resolved
	open    []byte // resolved literal text of the current message
	events  []protocol.ControlEvent
	done    []Item

	log *logrus.Entry
}

// New creates an empty reassembler for proto that logs to the logrus
// standard logger.
func New(proto *protocol.Protocol) *Reassembler {
	return NewWithLogger(proto, nil)
}

// NewWithLogger creates an empty reassembler that writes diagnostics to log.
func NewWithLogger(proto *protocol.Protocol, log *logrus.Entry) *Reassembler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	_, end := proto.Delimiters()
	return &Reassembler{
		proto:  proto,
		marker: proto.Marker(),
		end:    []byte(end),
		log:    log,
	}
}

// Feed appends plaintext and resolves every fully bounded token in it.
func (r *Reassembler) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	r.pending = append(r.pending, p...)
	r.scan()
}

func (r *Reassembler) scan() {
	rest := r.pending
	for len(rest) > 0 {
		i := bytes.Index(rest, r.marker)
		if i < 0 {
			keep := partialSuffix(rest, r.marker)
			r.open = append(r.open, rest[:len(rest)-keep]...)
			rest = rest[len(rest)-keep:]
			break
		}

		r.open = append(r.open, rest[:i]...)
		rest = rest[i:]

		j := bytes.Index(rest[len(r.marker):], r.end)
		if j < 0 {
			// incomplete trailing token
			break
		}
		n := len(r.marker) + j + len(r.end)
		if !r.resolve(rest[:n]) {
			// Not a token. Release one byte so a genuine marker inside the
			// candidate is still found.
			r.open = append(r.open, rest[0])
			rest = rest[1:]
			continue
		}
		rest = rest[n:]
	}
	r.pending = append([]byte(nil), rest...)
}

// resolve classifies one marker-bounded candidate. It returns false when the
// candidate is not a valid token.
func (r *Reassembler) resolve(token []byte) bool {
	ev, err := r.proto.Decode(string(token))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"function": "Reassembler.resolve",
			"package":  "reassembly",
			"error":    err.Error(),
		}).Debug("Treating unmatched token as literal text")
		return false
	}

	switch {
	case ev.Name == protocol.EventEnd:
		text := r.open
		if text == nil {
			text = []byte{}
		}
		r.done = append(r.done, Item{Text: text, Events: r.events})
		r.open = nil
		r.events = nil
	case r.proto.IsImmediate(ev.Name):
		r.done = append(r.done, Item{Event: &ev})
	default:
		r.events = append(r.events, ev)
	}
	return true
}

// partialSuffix returns the length of the longest proper prefix of marker
// that buf ends with.
func partialSuffix(buf, marker []byte) int {
	k := len(marker) - 1
	if k > len(buf) {
		k = len(buf)
	}
	for ; k > 0; k-- {
		if bytes.HasSuffix(buf, marker[:k]) {
			return k
		}
	}
	return 0
}

// Complete drains the completed items, leaving any open fragment buffered.
func (r *Reassembler) Complete() []Item {
	items := r.done
	r.done = nil
	return items
}

// All drains the completed items and flushes the open fragment, held bytes,
// and deferred events as a final Partial item. Used at teardown.
func (r *Reassembler) All() []Item {
	items := r.Complete()
	if len(r.open) > 0 || len(r.pending) > 0 || len(r.events) > 0 {
		text := append(r.open, r.pending...)
		items = append(items, Item{Text: text, Events: r.events, Partial: true})
	}
	r.open, r.pending, r.events = nil, nil, nil
	return items
}

// PendingEvents returns the number of deferred events awaiting an end token.
func (r *Reassembler) PendingEvents() int { return len(r.events) }

// Buffered returns the number of plaintext bytes not yet in a completed item.
func (r *Reassembler) Buffered() int { return len(r.open) + len(r.pending) }

// Reset discards all state.
func (r *Reassembler) Reset() {
	r.pending, r.open, r.events, r.done = nil, nil, nil, nil
}

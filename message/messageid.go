package message

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/idna"

	"github.com/mjl-/mimecodec/charclass"
	"github.com/mjl-/mimecodec/token"
)

// Pedantic makes parsing stricter, rejecting syntax seen in practice that is
// not allowed by the RFCs.
var Pedantic bool

var errBadMessageID = errors.New("not a message-id")

// MessageIDCanonical parses the Message-ID, returning a canonical value that is
// lower-cased, without <>, and no unneeded quoting. For matching in threading,
// with References/In-Reply-To. If the message-id is invalid (e.g. no <>), an error
// is returned. If the message-id could not be parsed as address (localpart "@"
// domain), the raw value and the bool return parameter true is returned. It is
// quite common that message-id's don't adhere to the localpart @ domain
// syntax.
func MessageIDCanonical(s string) (string, bool, error) {
	// ../rfc/5322:1383
	src := []byte(s)
	cursor := 0
	t, err := token.Next(src, charclass.Atom, true, &cursor)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", errBadMessageID, err)
	} else if t.Kind != token.AngleBracketedValue {
		return "", false, fmt.Errorf("%w: missing <", errBadMessageID)
	}
	// Seen in practice: Message-ID: <valid@valid.example> (added by postmaster@some.example)
	// Doesn't seem valid, but we allow it.
	if rest := src[cursor:]; len(rest) > 0 && (Pedantic || !charclass.FWS.Has(rest[0])) {
		return "", false, fmt.Errorf("%w: text after message-id", errBadMessageID)
	}
	id := string(t.Inner(src))
	if id == "" {
		return "", false, fmt.Errorf("%w: empty message-id", errBadMessageID)
	}
	id, raw := canonicalID(id)
	return id, raw, nil
}

// canonicalID returns the lower-cased id with the local part unquoted if
// possible, and whether id is not in addr-spec form.
func canonicalID(id string) (string, bool) {
	id = strings.ToLower(id)
	src := []byte(id)
	l, err := token.New(src, charclass.Atom, true).All()
	if err != nil || len(l) != 3 || l[1].Kind != token.Separator || src[l[1].Offset] != '@' || l[2].Kind != token.Value {
		// Common reasons for not being an address: ip literal instead of domain, two
		// @'s (perhaps intended as time-separator), no @.
		return id, true
	}
	var local string
	switch l[0].Kind {
	case token.Value:
		local = string(l[0].Bytes(src))
	case token.QuotedValue:
		local = string(token.Unescape(l[0].Inner(src)))
		if !isDotAtom(local) {
			local = token.Quote(local)
		}
	default:
		return id, true
	}
	// We preserve the unicode-ness of domain, but it must be valid.
	domain := string(l[2].Bytes(src))
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return id, true
	}
	return local + "@" + domain, false
}

func isDotAtom(s string) bool {
	src := []byte(s)
	cursor := 0
	t, err := token.Next(src, charclass.Atom, true, &cursor)
	return err == nil && t.Kind == token.Value && t.Offset == 0 && t.Length == len(src)
}

// ReferencedIDs returns the Message-IDs referenced from the References header(s),
// with a fallback to the In-Reply-To header(s). The ids are canonicalized for
// thread-matching, like with MessageIDCanonical. Empty message-id's are skipped.
func ReferencedIDs(references []string, inReplyTo []string) []string {
	var refids []string // In thread-canonical form.

	// Parse and add message-ids from s, stopping after the first if one is set.
	parse := func(s string, one bool) {
		src := []byte(s)
		cursor := 0
		for {
			t, err := token.Next(src, charclass.Atom, true, &cursor)
			if err != nil {
				// Unterminated, to make progress we skip the opening byte.
				for cursor < len(src) && charclass.FWS.Has(src[cursor]) {
					cursor++
				}
				cursor++
				continue
			} else if !t.Valid() {
				return
			} else if t.Kind != token.AngleBracketedValue {
				continue
			}
			ref := t.Inner(src)
			// A "<" before the ">" means an entry was truncated, we ignore it.
			if i := strings.LastIndexByte(string(ref), '<'); i >= 0 {
				ref = ref[i+1:]
			}
			// Some MUAs wrap References line in the middle of message-id's, and others
			// recombine them. Take out bare WSP in message-id's.
			id := strings.Map(func(r rune) rune {
				if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
					return -1
				}
				return r
			}, string(ref))
			if id == "" {
				continue
			}
			id, _ = canonicalID(id)
			refids = append(refids, id)
			if one {
				return
			}
		}
	}

	// References is the modern way (for a long time already) to reference ancestors.
	// The direct parent is typically at the end of the list.
	for _, refs := range references {
		parse(refs, false)
	}
	// We only look at the In-Reply-To header if we didn't find any References.
	for _, s := range inReplyTo {
		if len(refids) > 0 {
			break
		}
		parse(s, true)
	}
	return refids
}

// ReferencedIDs returns the canonical message-ids from the References fields,
// or the In-Reply-To fields if there are none.
func (h Header) ReferencedIDs() []string {
	return ReferencedIDs(h.Values("References"), h.Values("In-Reply-To"))
}

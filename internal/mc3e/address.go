package mc3e

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"scadalink/internal/logging"
)

// addressPattern is the strict shape every tag address must match:
// one or more letters (device family), a decimal device number, an
// optional single-letter extension character, and an optional
// ".<digit-or-letter>" bit offset.
var addressPattern = regexp.MustCompile(`^([A-Z]+)(\d+)([A-Z])?(?:\.([0-9A-Z]))?$`)

// Address is a parsed tag address. Format() . reproduces the original
// (case-normalized) string.
type Address struct {
	Raw        string
	Family     string
	Number     int
	ExtChar    byte // 0 if absent
	BitOffset  string // "" if absent
}

// ParseAddress parses s against the strict MC3E address shape. A
// non-matching address is not an error the caller must treat as fatal — per
// the wire client's contract, the caller logs and skips it.
func ParseAddress(s string) (Address, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	m := addressPattern.FindStringSubmatch(up)
	if m == nil {
		return Address{}, fmt.Errorf("mc3e: malformed address %q", s)
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return Address{}, fmt.Errorf("mc3e: malformed device number in %q: %w", s, err)
	}
	var ext byte
	if m[3] != "" {
		ext = m[3][0]
	}
	return Address{
		Raw:       up,
		Family:    m[1],
		Number:    num,
		ExtChar:   ext,
		BitOffset: m[4],
	}, nil
}

// IsBitAddressed reports whether the address names a single bit inside a
// word register. Bit-addressed tags are never coalesced into a batch run.
func (a Address) IsBitAddressed() bool { return a.BitOffset != "" }

// HasExtChar reports whether the address carries a device-number extension
// character (e.g. the "C" in W327C).
func (a Address) HasExtChar() bool { return a.ExtChar != 0 }

// Format reproduces the original address string, case-normalized to upper.
func (a Address) Format() string {
	var sb strings.Builder
	sb.WriteString(a.Family)
	sb.WriteString(strconv.Itoa(a.Number))
	if a.ExtChar != 0 {
		sb.WriteByte(a.ExtChar)
	}
	if a.BitOffset != "" {
		sb.WriteByte('.')
		sb.WriteString(a.BitOffset)
	}
	return sb.String()
}

// AddressRun is either a contiguous batch of word-addressed registers
// (Count > 1) or a singleton — always the latter for a bit-addressed or
// extChar-bearing address, since those require a different wire command and
// must never be coalesced with a neighbor.
type AddressRun struct {
	Family     string
	HeadNumber int
	Addresses  []string // original-order addresses covered by this run
}

// Count is the number of registers spanned by the run.
func (r AddressRun) Count() int { return len(r.Addresses) }

// GroupContinuousAddresses partitions addrs by device family, sorts each
// partition by device number, and emits runs of strictly consecutive
// numbers only when neither the address itself nor its neighbor carries an
// extChar or bitOffset. Malformed addresses are logged and dropped.
func GroupContinuousAddresses(addrs []string) []AddressRun {
	type parsed struct {
		addr Address
		orig string
	}
	byFamily := make(map[string][]parsed)
	for _, a := range addrs {
		p, err := ParseAddress(a)
		if err != nil {
			logging.Debug("MC3E", "skipping address: %v", err)
			continue
		}
		byFamily[p.Family] = append(byFamily[p.Family], parsed{addr: p, orig: a})
	}

	families := make([]string, 0, len(byFamily))
	for f := range byFamily {
		families = append(families, f)
	}
	sort.Strings(families)

	var runs []AddressRun
	for _, fam := range families {
		items := byFamily[fam]
		sort.Slice(items, func(i, j int) bool { return items[i].addr.Number < items[j].addr.Number })

		var cur *AddressRun
		flush := func() {
			if cur != nil {
				runs = append(runs, *cur)
				cur = nil
			}
		}
		for i, it := range items {
			coalescable := !it.addr.IsBitAddressed() && !it.addr.HasExtChar()
			if !coalescable {
				flush()
				runs = append(runs, AddressRun{Family: fam, HeadNumber: it.addr.Number, Addresses: []string{it.orig}})
				continue
			}
			if cur != nil && it.addr.Number == items[i-1].addr.Number+1 {
				cur.Addresses = append(cur.Addresses, it.orig)
				continue
			}
			flush()
			cur = &AddressRun{Family: fam, HeadNumber: it.addr.Number, Addresses: []string{it.orig}}
		}
		flush()
	}
	return runs
}

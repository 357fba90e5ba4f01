package mediaid

import (
	"fmt"
	"strconv"
	"strings"

	"coursekit/internal/media"
)

// ExpectedID returns the positional identifier for a singleton asset:
// "{kind}-{position}" where welcome is 0, objectives is 1, and topic n is n+2.
func ExpectedID(page media.PageRef, kind media.Kind) (string, error) {
	if !kind.Singleton() {
		return "", fmt.Errorf("expected id: %s is not a per-page singleton", kind)
	}
	pos := page.Position()
	if pos < 0 {
		return "", fmt.Errorf("expected id: invalid page reference")
	}
	return kind.IDPrefix() + "-" + strconv.Itoa(pos), nil
}

// Verdict is the outcome of Validate. A rejected id must be treated as absent.
type Verdict struct {
	Accepted bool
	Expected string
}

// Validate compares observed with the positional id for page and kind.
// Non-singleton kinds are always accepted.
func Validate(observed string, page media.PageRef, kind media.Kind) Verdict {
	if !kind.Singleton() {
		return Verdict{Accepted: true}
	}
	expected, err := ExpectedID(page, kind)
	if err != nil {
		return Verdict{}
	}
	return Verdict{Accepted: observed == expected, Expected: expected}
}

// Slot is one singleton position to check. An empty ID means the page has none.
type Slot struct {
	Page media.PageRef
	Kind media.Kind
	ID   string
}

// Mismatch describes a rejected slot.
type Mismatch struct {
	Index    int
	Page     media.PageRef
	Kind     media.Kind
	Found    string
	Expected string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: found %s, expected %s", m.Page, m.Kind, m.Found, m.Expected)
}

// Report is the result of ReconcileAll. IDs is parallel to the input slots;
// an empty string means the slot resolves to no asset.
type Report struct {
	IDs        []string
	Mismatches []Mismatch
}

// ReconcileAll validates each slot independently: the expected id depends only
// on the slot's page, so an upstream mismatch never shifts the baseline for
// later pages.
func ReconcileAll(slots []Slot) Report {
	report := Report{IDs: make([]string, len(slots))}
	for i, slot := range slots {
		if slot.ID == "" {
			continue
		}
		verdict := Validate(slot.ID, slot.Page, slot.Kind)
		if verdict.Accepted {
			report.IDs[i] = slot.ID
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			Index:    i,
			Page:     slot.Page,
			Kind:     slot.Kind,
			Found:    slot.ID,
			Expected: verdict.Expected,
		})
	}
	return report
}

// Parse splits "{prefix}-{n}" into its kind prefix and index.
func Parse(id string) (prefix string, n int, ok bool) {
	idx := strings.LastIndexByte(id, '-')
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:idx], n, true
}

// PageForID derives the page owning a positional singleton id such as
// "audio-0" or "caption-4". It reports false for anything else.
func PageForID(id string) (media.PageRef, media.Kind, bool) {
	prefix, n, ok := Parse(id)
	if !ok {
		return media.PageRef{}, 0, false
	}
	kind, err := media.ParseKind(prefix)
	if err != nil || !kind.Singleton() {
		return media.PageRef{}, 0, false
	}
	page, ok := media.PageAt(n)
	return page, kind, ok
}

// IsDuplicateName reports names of the form "{kind}-{n}-{m}" (with an
// optional extension) left behind by earlier copy-on-conflict writes, such as
// "audio-1-1.bin".
func IsDuplicateName(name string) bool {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		name = name[:dot]
	}
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return false
	}
	_, err := strconv.ParseUint(parts[len(parts)-1], 10, 32)
	return err == nil
}

// NextID allocates a fresh id for a non-singleton kind, one past the highest
// index already used with the same prefix. Indexes are never reused.
func NextID(kind media.Kind, existing []string) string {
	prefix := kind.IDPrefix()
	next := 0
	for _, id := range existing {
		p, n, ok := Parse(id)
		if !ok || p != prefix {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	return prefix + "-" + strconv.Itoa(next)
}

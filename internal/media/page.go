package media

import (
	"fmt"
	"strconv"
	"strings"
)

type pageSection int

const (
	sectionWelcome pageSection = iota + 1
	sectionObjectives
	sectionTopic
)

// PageRef identifies the page that owns an asset: the welcome page, the
// learning objectives page, or a topic by zero-based index.
type PageRef struct {
	section pageSection
	topic   int
}

// Welcome returns the reference to the welcome page.
func Welcome() PageRef { return PageRef{section: sectionWelcome} }

// Objectives returns the reference to the learning objectives page.
func Objectives() PageRef { return PageRef{section: sectionObjectives} }

// Topic returns the reference to the topic at index n.
func Topic(n int) PageRef { return PageRef{section: sectionTopic, topic: n} }

// PageAt returns the page at a document position (0 welcome, 1 objectives, n+2 topic n).
func PageAt(position int) (PageRef, bool) {
	switch {
	case position == 0:
		return Welcome(), true
	case position == 1:
		return Objectives(), true
	case position >= 2:
		return Topic(position - 2), true
	default:
		return PageRef{}, false
	}
}

// Valid reports whether p names a page.
func (p PageRef) Valid() bool {
	switch p.section {
	case sectionWelcome, sectionObjectives:
		return p.topic == 0
	case sectionTopic:
		return p.topic >= 0
	default:
		return false
	}
}

// IsTopic reports whether p is a topic page and returns its index.
func (p PageRef) IsTopic() (int, bool) {
	if p.section != sectionTopic {
		return 0, false
	}
	return p.topic, true
}

// Position returns the document-order index of the page, or -1 if p is invalid.
func (p PageRef) Position() int {
	if !p.Valid() {
		return -1
	}
	switch p.section {
	case sectionWelcome:
		return 0
	case sectionObjectives:
		return 1
	default:
		return p.topic + 2
	}
}

func (p PageRef) String() string {
	switch p.section {
	case sectionWelcome:
		return "welcome"
	case sectionObjectives:
		return "objectives"
	case sectionTopic:
		return "topic-" + strconv.Itoa(p.topic)
	default:
		return ""
	}
}

// ParsePageRef accepts "welcome", "objectives" (or "learning-objectives") and "topic-N".
func ParsePageRef(value string) (PageRef, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "welcome":
		return Welcome(), nil
	case "objectives", "learning-objectives":
		return Objectives(), nil
	}
	if rest, ok := strings.CutPrefix(v, "topic-"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 0 {
			return Topic(n), nil
		}
	}
	return PageRef{}, fmt.Errorf("invalid page reference %q", value)
}

func (p PageRef) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("marshal page reference: invalid value")
	}
	return []byte(p.String()), nil
}

func (p *PageRef) UnmarshalText(text []byte) error {
	parsed, err := ParsePageRef(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

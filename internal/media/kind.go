package media

import (
	"fmt"
	"strings"
)

// Kind classifies a media asset. The set is closed; the zero value is invalid.
type Kind int

const (
	KindImage Kind = iota + 1
	KindVideo
	KindAudio
	KindCaption
	KindRemoteVideo
)

// Kinds lists every valid kind in declaration order.
var Kinds = []Kind{KindImage, KindVideo, KindAudio, KindCaption, KindRemoteVideo}

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindCaption:
		return "caption"
	case KindRemoteVideo:
		return "remote-video"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindImage && k <= KindRemoteVideo
}

// Singleton reports whether at most one asset of this kind may belong to a page.
func (k Kind) Singleton() bool {
	return k == KindAudio || k == KindCaption
}

// Local reports whether assets of this kind carry a stored payload.
func (k Kind) Local() bool {
	return k.Valid() && k != KindRemoteVideo
}

// IDPrefix returns the prefix used when allocating identifiers for k.
// Remote videos share the "video" prefix with uploaded video.
func (k Kind) IDPrefix() string {
	if k == KindRemoteVideo {
		return "video"
	}
	return k.String()
}

// ParseKind resolves the textual form produced by String.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "image":
		return KindImage, nil
	case "video":
		return KindVideo, nil
	case "audio":
		return KindAudio, nil
	case "caption":
		return KindCaption, nil
	case "remote-video", "youtube":
		return KindRemoteVideo, nil
	default:
		return 0, fmt.Errorf("unknown media kind %q", value)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("marshal media kind: invalid value %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

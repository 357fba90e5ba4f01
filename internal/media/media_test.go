package media_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"coursekit/internal/media"
)

func TestParseKindRoundTrip(t *testing.T) {
	for _, kind := range media.Kinds {
		parsed, err := media.ParseKind(kind.String())
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", kind, err)
		}
		if parsed != kind {
			t.Fatalf("ParseKind(%q) = %v", kind, parsed)
		}
	}
	if _, err := media.ParseKind("hologram"); err == nil {
		t.Fatal("expected unknown kind error")
	}
	var zero media.Kind
	if _, err := zero.MarshalText(); err == nil {
		t.Fatal("expected zero kind to fail marshalling")
	}
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		kind      media.Kind
		singleton bool
		local     bool
		prefix    string
	}{
		{media.KindImage, false, true, "image"},
		{media.KindVideo, false, true, "video"},
		{media.KindAudio, true, true, "audio"},
		{media.KindCaption, true, true, "caption"},
		{media.KindRemoteVideo, false, false, "video"},
	}
	for _, tc := range tests {
		if tc.kind.Singleton() != tc.singleton {
			t.Fatalf("%s singleton = %v", tc.kind, tc.kind.Singleton())
		}
		if tc.kind.Local() != tc.local {
			t.Fatalf("%s local = %v", tc.kind, tc.kind.Local())
		}
		if tc.kind.IDPrefix() != tc.prefix {
			t.Fatalf("%s prefix = %q", tc.kind, tc.kind.IDPrefix())
		}
	}
}

func TestPageRefPositions(t *testing.T) {
	tests := []struct {
		page media.PageRef
		pos  int
		text string
	}{
		{media.Welcome(), 0, "welcome"},
		{media.Objectives(), 1, "objectives"},
		{media.Topic(0), 2, "topic-0"},
		{media.Topic(7), 9, "topic-7"},
	}
	for _, tc := range tests {
		if got := tc.page.Position(); got != tc.pos {
			t.Fatalf("%s position = %d, want %d", tc.text, got, tc.pos)
		}
		if tc.page.String() != tc.text {
			t.Fatalf("String() = %q, want %q", tc.page.String(), tc.text)
		}
		back, ok := media.PageAt(tc.pos)
		if !ok || back != tc.page {
			t.Fatalf("PageAt(%d) = %v, %v", tc.pos, back, ok)
		}
		parsed, err := media.ParsePageRef(tc.text)
		if err != nil || parsed != tc.page {
			t.Fatalf("ParsePageRef(%q) = %v, %v", tc.text, parsed, err)
		}
	}
	if (media.PageRef{}).Valid() {
		t.Fatal("zero page ref must be invalid")
	}
	if media.Topic(-1).Valid() {
		t.Fatal("negative topic must be invalid")
	}
	if _, err := media.ParsePageRef("topic-x"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRefJSONPreservesClipBounds(t *testing.T) {
	ref := media.Ref{
		ID:   "video-1",
		Kind: media.KindRemoteVideo,
		Source: media.RemoteVideo{
			URL:       "https://www.youtube.com/watch?v=abc",
			ClipStart: media.Seconds(30),
			ClipEnd:   media.Seconds(90),
		},
	}
	data, err := json.Marshal(ref)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded media.Ref
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(ref) {
		t.Fatalf("decoded %+v, want %+v", decoded, ref)
	}
	rv := decoded.Source.(media.RemoteVideo)
	if *rv.ClipStart != 30 || *rv.ClipEnd != 90 {
		t.Fatalf("clip bounds lost: %v %v", rv.ClipStart, rv.ClipEnd)
	}
}

func TestRefJSONLocalSource(t *testing.T) {
	var ref media.Ref
	if err := json.Unmarshal([]byte(`{"id":"image-0","kind":"image","mime":"image/png","size":4}`), &ref); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	src, ok := ref.Source.(media.LocalFile)
	if !ok || src.MIME != "image/png" || src.Size != 4 {
		t.Fatalf("unexpected source %#v", ref.Source)
	}
	if err := json.Unmarshal([]byte(`{"id":"x-1"}`), &ref); err == nil {
		t.Fatal("expected missing kind to fail")
	}
}

func TestRefValidate(t *testing.T) {
	tests := []struct {
		name string
		ref  media.Ref
		ok   bool
	}{
		{"local image", media.Ref{ID: "image-0", Kind: media.KindImage, Source: media.LocalFile{MIME: "image/png"}}, true},
		{"remote ok", media.Ref{ID: "video-0", Kind: media.KindRemoteVideo, Source: media.RemoteVideo{URL: "https://example.com/v"}}, true},
		{"remote without source", media.Ref{ID: "video-0", Kind: media.KindRemoteVideo}, false},
		{"remote on image", media.Ref{ID: "image-0", Kind: media.KindImage, Source: media.RemoteVideo{URL: "https://example.com/v"}}, false},
		{"clip reversed", media.Ref{ID: "video-0", Kind: media.KindRemoteVideo, Source: media.RemoteVideo{URL: "https://example.com/v", ClipStart: media.Seconds(90), ClipEnd: media.Seconds(30)}}, false},
		{"clip negative", media.Ref{ID: "video-0", Kind: media.KindRemoteVideo, Source: media.RemoteVideo{URL: "https://example.com/v", ClipStart: media.Seconds(-1)}}, false},
		{"bad scheme", media.Ref{ID: "video-0", Kind: media.KindRemoteVideo, Source: media.RemoteVideo{URL: "ftp://example.com/v"}}, false},
		{"path id", media.Ref{ID: "../etc/passwd", Kind: media.KindImage}, false},
		{"zero kind", media.Ref{ID: "image-0"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ref.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("get: %w", media.ErrNotFound), "not_found"},
		{media.NewIOError("write", "image-0", os.ErrPermission), "io_failure"},
		{fmt.Errorf("export: %w", media.ErrCorrupted), "corrupted"},
		{media.ErrArchiveInvalid, "archive_invalid"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range tests {
		if got := media.ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	ioErr := media.NewIOError("write", "image-0", os.ErrPermission)
	if !errors.Is(ioErr, os.ErrPermission) {
		t.Fatal("expected IOError to unwrap to cause")
	}
	if media.NewIOError("write", "x", nil) != nil {
		t.Fatal("expected nil for nil cause")
	}
}

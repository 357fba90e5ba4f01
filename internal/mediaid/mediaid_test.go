package mediaid_test

import (
	"reflect"
	"testing"

	"coursekit/internal/media"
	"coursekit/internal/mediaid"
)

func TestExpectedID(t *testing.T) {
	tests := []struct {
		page media.PageRef
		kind media.Kind
		want string
	}{
		{media.Welcome(), media.KindAudio, "audio-0"},
		{media.Objectives(), media.KindAudio, "audio-1"},
		{media.Topic(0), media.KindCaption, "caption-2"},
		{media.Topic(10), media.KindCaption, "caption-12"},
	}
	for _, tc := range tests {
		got, err := mediaid.ExpectedID(tc.page, tc.kind)
		if err != nil {
			t.Fatalf("ExpectedID(%s, %s): %v", tc.page, tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("ExpectedID(%s, %s) = %q, want %q", tc.page, tc.kind, got, tc.want)
		}
	}
	if _, err := mediaid.ExpectedID(media.Topic(0), media.KindImage); err == nil {
		t.Fatal("expected error for non-singleton kind")
	}
	if _, err := mediaid.ExpectedID(media.PageRef{}, media.KindAudio); err == nil {
		t.Fatal("expected error for invalid page")
	}
}

func TestExpectedIDStableAndIncreasing(t *testing.T) {
	for _, kind := range []media.Kind{media.KindAudio, media.KindCaption} {
		prev := -1
		for n := 0; n < 50; n++ {
			first, _ := mediaid.ExpectedID(media.Topic(n), kind)
			second, _ := mediaid.ExpectedID(media.Topic(n), kind)
			if first != second {
				t.Fatalf("unstable id for topic %d: %q vs %q", n, first, second)
			}
			_, idx, ok := mediaid.Parse(first)
			if !ok || idx <= prev {
				t.Fatalf("index for topic %d not increasing: %q after %d", n, first, prev)
			}
			prev = idx
		}
	}
}

func TestValidate(t *testing.T) {
	if v := mediaid.Validate("audio-2", media.Topic(0), media.KindAudio); !v.Accepted {
		t.Fatalf("expected acceptance, got %+v", v)
	}
	v := mediaid.Validate("audio-1", media.Topic(0), media.KindAudio)
	if v.Accepted || v.Expected != "audio-2" {
		t.Fatalf("expected rejection with audio-2, got %+v", v)
	}
	if v := mediaid.Validate("image-9", media.Topic(0), media.KindImage); !v.Accepted {
		t.Fatal("non-singleton kinds are never rejected")
	}
}

func TestReconcileAllMisalignedCaptions(t *testing.T) {
	pages := []media.PageRef{media.Welcome(), media.Objectives(), media.Topic(0), media.Topic(1)}
	ids := []string{"caption-0", "caption-1", "caption-1", "caption-2"}
	slots := make([]mediaid.Slot, len(pages))
	for i := range pages {
		slots[i] = mediaid.Slot{Page: pages[i], Kind: media.KindCaption, ID: ids[i]}
	}

	report := mediaid.ReconcileAll(slots)

	wantIDs := []string{"caption-0", "caption-1", "", ""}
	if !reflect.DeepEqual(report.IDs, wantIDs) {
		t.Fatalf("IDs = %q, want %q", report.IDs, wantIDs)
	}
	wantMismatches := []mediaid.Mismatch{
		{Index: 2, Page: media.Topic(0), Kind: media.KindCaption, Found: "caption-1", Expected: "caption-2"},
		{Index: 3, Page: media.Topic(1), Kind: media.KindCaption, Found: "caption-2", Expected: "caption-3"},
	}
	if !reflect.DeepEqual(report.Mismatches, wantMismatches) {
		t.Fatalf("Mismatches = %+v, want %+v", report.Mismatches, wantMismatches)
	}
}

func TestReconcileAllSkipsEmptySlots(t *testing.T) {
	report := mediaid.ReconcileAll([]mediaid.Slot{
		{Page: media.Welcome(), Kind: media.KindAudio},
		{Page: media.Objectives(), Kind: media.KindAudio, ID: "audio-1"},
	})
	if len(report.Mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %+v", report.Mismatches)
	}
	if report.IDs[0] != "" || report.IDs[1] != "audio-1" {
		t.Fatalf("unexpected ids: %q", report.IDs)
	}
}

func TestPageForID(t *testing.T) {
	tests := []struct {
		id   string
		page media.PageRef
		kind media.Kind
		ok   bool
	}{
		{"audio-0", media.Welcome(), media.KindAudio, true},
		{"caption-1", media.Objectives(), media.KindCaption, true},
		{"audio-5", media.Topic(3), media.KindAudio, true},
		{"image-0", media.PageRef{}, 0, false},
		{"audio", media.PageRef{}, 0, false},
		{"audio-x", media.PageRef{}, 0, false},
	}
	for _, tc := range tests {
		page, kind, ok := mediaid.PageForID(tc.id)
		if ok != tc.ok || page != tc.page || kind != tc.kind {
			t.Fatalf("PageForID(%q) = %v %v %v", tc.id, page, kind, ok)
		}
	}
}

func TestIsDuplicateName(t *testing.T) {
	tests := map[string]bool{
		"audio-1-1.bin": true,
		"caption-2-1":   true,
		"audio-1.json":  false,
		"image-0":       false,
		"audio-1-x.bin": false,
		"video-12.bin":  false,
	}
	for name, want := range tests {
		if got := mediaid.IsDuplicateName(name); got != want {
			t.Fatalf("IsDuplicateName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNextID(t *testing.T) {
	existing := []string{"image-0", "image-3", "audio-7", "video-1"}
	if got := mediaid.NextID(media.KindImage, existing); got != "image-4" {
		t.Fatalf("NextID(image) = %q", got)
	}
	if got := mediaid.NextID(media.KindRemoteVideo, existing); got != "video-2" {
		t.Fatalf("NextID(remote) = %q", got)
	}
	if got := mediaid.NextID(media.KindVideo, nil); got != "video-0" {
		t.Fatalf("NextID(empty) = %q", got)
	}
}

package strategy_test

import (
	"testing"

	"vidshrink/internal/strategy"
)

func mustPolicy(t *testing.T, version string) strategy.Policy {
	t.Helper()
	p, err := strategy.Lookup(version)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", version, err)
	}
	return p
}

func TestIs4K(t *testing.T) {
	tests := []struct {
		w, h int
		want bool
	}{
		{3840, 2160, true},
		{2160, 3840, true},
		{1080, 1920, false},
		{2560, 1080, false},
		{1920, 1080, false},
		{0, 2160, false},
	}
	for _, tt := range tests {
		if got := strategy.Is4K(tt.w, tt.h); got != tt.want {
			t.Errorf("Is4K(%d,%d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestScaleFilterFor(t *testing.T) {
	if got := strategy.ScaleFilterFor(2160, 3840); got != "scale=1080:-2" {
		t.Fatalf("portrait filter = %q", got)
	}
	if got := strategy.ScaleFilterFor(3840, 2160); got != "scale=-2:1080" {
		t.Fatalf("landscape filter = %q", got)
	}
	if got := strategy.ScaleFilterFor(0, 0); got != "scale=-2:1080" {
		t.Fatalf("unknown dimensions filter = %q", got)
	}
}

func TestDecideRules(t *testing.T) {
	p := mustPolicy(t, "v4")
	tests := []struct {
		name    string
		in      strategy.Input
		action  strategy.Action
		quality int
		down    bool
		gate    bool
	}{
		{"tagged", strategy.Input{Codec: "h264", Bitrate: 9e6, Width: 1920, Height: 1080, AlreadyTagged: true, ContainerExt: ".mp4"}, strategy.ActionSkipTagged, 0, false, false},
		{"mp4 4k", strategy.Input{Codec: "hevc", Bitrate: 20e6, Width: 3840, Height: 2160, ContainerExt: ".mp4"}, strategy.ActionEncode, 26, true, true},
		{"portrait 4k mkv", strategy.Input{Codec: "h264", Bitrate: 20e6, Width: 2160, Height: 3840, ContainerExt: ".mkv"}, strategy.ActionEncode, 26, true, false},
		{"mp4 hevc", strategy.Input{Codec: "hevc", Bitrate: 3e6, Width: 1920, Height: 1080, ContainerExt: ".MP4"}, "skip_hevc", 0, false, false},
		{"mp4 av1", strategy.Input{Codec: "av1", Bitrate: 3e6, Width: 1920, Height: 1080, ContainerExt: ".mp4"}, "skip_av1", 0, false, false},
		{"mp4 h264 high", strategy.Input{Codec: "h264", Bitrate: 3_000_000, Width: 1920, Height: 1080, ContainerExt: ".mp4"}, strategy.ActionEncode, 28, false, true},
		{"mp4 h264 at high threshold", strategy.Input{Codec: "h264", Bitrate: 2_000_000, Width: 1280, Height: 720, ContainerExt: ".mp4"}, strategy.ActionEncode, 28, false, true},
		{"mp4 h264 mid", strategy.Input{Codec: "h264", Bitrate: 1_000_000, Width: 1280, Height: 720, ContainerExt: ".mp4"}, strategy.ActionEncode, 30, false, true},
		{"mp4 h264 tiny", strategy.Input{Codec: "h264", Bitrate: 499_999, Width: 640, Height: 360, ContainerExt: ".mp4"}, strategy.ActionSkipTiny, 0, false, false},
		{"mp4 vp9", strategy.Input{Codec: "vp9", Bitrate: 2e6, Width: 1920, Height: 1080, ContainerExt: ".mp4"}, strategy.ActionEncode, 30, false, true},
		{"mp4 mpeg4", strategy.Input{Codec: "mpeg4", Bitrate: 2e6, Width: 720, Height: 480, ContainerExt: ".mp4"}, strategy.ActionEncode, 28, false, true},
		{"mkv hevc", strategy.Input{Codec: "hevc", Bitrate: 4e6, Width: 1920, Height: 1080, ContainerExt: ".mkv"}, strategy.ActionRemux, 0, false, false},
		{"mkv vp9", strategy.Input{Codec: "vp9", Bitrate: 4e6, Width: 1920, Height: 1080, ContainerExt: ".webm"}, strategy.ActionEncode, 30, false, false},
		{"avi tiny h264", strategy.Input{Codec: "h264", Bitrate: 100_000, Width: 320, Height: 240, ContainerExt: ".avi"}, strategy.ActionEncode, 28, false, false},
		{"ultrawide", strategy.Input{Codec: "h264", Bitrate: 5e6, Width: 2560, Height: 1080, ContainerExt: ".mp4"}, strategy.ActionEncode, 28, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := strategy.Decide(p, tt.in)
			if d.Action != tt.action {
				t.Fatalf("action = %q, want %q (reason %q)", d.Action, tt.action, d.Reason)
			}
			if d.TargetQuality != tt.quality {
				t.Fatalf("quality = %d, want %d", d.TargetQuality, tt.quality)
			}
			if d.Downscale != tt.down {
				t.Fatalf("downscale = %v, want %v", d.Downscale, tt.down)
			}
			if d.SizeGateRequired != tt.gate {
				t.Fatalf("size gate = %v, want %v", d.SizeGateRequired, tt.gate)
			}
			if d.PolicyVersion != "v4" {
				t.Fatalf("policy version = %q", d.PolicyVersion)
			}
			if d.Reason == "" {
				t.Fatal("expected a reason")
			}
		})
	}
}

func TestDecideIsPure(t *testing.T) {
	p := mustPolicy(t, "v3")
	in := strategy.Input{Codec: "h264", Bitrate: 3_000_000, Width: 1920, Height: 1080, ContainerExt: ".mp4"}
	first := strategy.Decide(p, in)
	for i := 0; i < 10; i++ {
		if got := strategy.Decide(p, in); got != first {
			t.Fatalf("decision changed between calls: %+v vs %+v", got, first)
		}
	}
	if first.PolicyVersion != "v3" {
		t.Fatalf("expected v3 recorded, got %q", first.PolicyVersion)
	}
}

func TestPolicyTags(t *testing.T) {
	p := mustPolicy(t, "v4")
	if !p.IsTagged("compressed_h264_v4") {
		t.Fatal("current tag not recognized")
	}
	if !p.IsTagged("note: compressed_hevc_v2") {
		t.Fatal("legacy tag not recognized")
	}
	if p.IsTagged("") || p.IsTagged("handbrake") {
		t.Fatal("unexpected tag match")
	}
	v3 := mustPolicy(t, "v3")
	if v3.IsTagged("compressed_h264_v4") {
		t.Fatal("v3 must not treat a later policy's tag as its own")
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := strategy.Lookup("v1"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
	p, err := strategy.Lookup("")
	if err != nil || p.Version != strategy.DefaultVersion {
		t.Fatalf("empty version should resolve to default: %v %q", err, p.Version)
	}
}

func TestActionHelpers(t *testing.T) {
	if !strategy.SkipEfficient("hevc").IsSkip() || !strategy.ActionSkipTagged.IsSkip() {
		t.Fatal("skip actions must report IsSkip")
	}
	if strategy.ActionEncode.IsSkip() || !strategy.ActionRemux.IsWork() {
		t.Fatal("work actions misclassified")
	}
}

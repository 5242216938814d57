package strategy

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is what the worker should do with a video.
type Action string

const (
	ActionEncode     Action = "encode"
	ActionRemux      Action = "remux"
	ActionSkipTagged Action = "skip_tagged"
	ActionSkipTiny   Action = "skip_tiny"
)

// SkipEfficient returns the skip action for an already-efficient codec, for
// example skip_hevc.
func SkipEfficient(codec string) Action {
	return Action("skip_" + codec)
}

// IsSkip reports whether the action leaves the file untouched.
func (a Action) IsSkip() bool {
	return strings.HasPrefix(string(a), "skip_")
}

// IsWork reports whether the action needs a transcode backend call.
func (a Action) IsWork() bool {
	return a == ActionEncode || a == ActionRemux
}

// Input is the probed metadata a decision is based on.
type Input struct {
	Codec         string
	Bitrate       int64
	Width         int
	Height        int
	AlreadyTagged bool
	ContainerExt  string
}

// Decision is the outcome of Decide.
type Decision struct {
	Action           Action
	TargetQuality    int
	Downscale        bool
	SizeGateRequired bool
	Reason           string
	PolicyVersion    string
}

// Decide maps metadata to an action under policy p. Rules apply in order:
// tagged files are skipped, 4K is always encoded with a downscale, files
// already in the target container are skipped, tiered, or encoded with a size
// gate, and files in any other container are remuxed or encoded without one.
func Decide(p Policy, in Input) Decision {
	d := decide(p, in)
	d.PolicyVersion = p.Version
	return d
}

func decide(p Policy, in Input) Decision {
	if in.AlreadyTagged {
		return Decision{Action: ActionSkipTagged, Reason: "already carries a compression tag"}
	}

	codec := strings.ToLower(strings.TrimSpace(in.Codec))
	target := p.IsTargetContainer(in.ContainerExt)
	containerLabel := strings.TrimPrefix(strings.ToLower(in.ContainerExt), ".")
	if containerLabel == "" {
		containerLabel = "unknown container"
	}

	if Is4K(in.Width, in.Height) {
		reason := fmt.Sprintf("4K %dx%d -> downscale to 1080p", in.Width, in.Height)
		if !target {
			reason = fmt.Sprintf("%s 4K %dx%d -> encode + downscale", containerLabel, in.Width, in.Height)
		}
		return Decision{
			Action:           ActionEncode,
			TargetQuality:    p.Quality.FourK,
			Downscale:        true,
			SizeGateRequired: target,
			Reason:           reason,
		}
	}

	if !target {
		if p.isEfficient(codec) {
			return Decision{
				Action: ActionRemux,
				Reason: fmt.Sprintf("%s %s -> remux to %s", containerLabel, codecLabel(codec), p.targetLabel()),
			}
		}
		return Decision{
			Action:        ActionEncode,
			TargetQuality: p.qualityFor(codec),
			Reason:        fmt.Sprintf("%s %s -> encode to %s", containerLabel, codecLabel(codec), p.targetLabel()),
		}
	}

	if p.isEfficient(codec) {
		return Decision{
			Action: SkipEfficient(codec),
			Reason: fmt.Sprintf("already %s %s, non-4K", codecLabel(codec), p.targetLabel()),
		}
	}

	if p.isTiered(codec) {
		mbps := float64(in.Bitrate) / 1_000_000
		switch {
		case in.Bitrate >= p.HighBitrate:
			return Decision{
				Action:           ActionEncode,
				TargetQuality:    p.Quality.High,
				SizeGateRequired: true,
				Reason:           fmt.Sprintf("%s at %s Mbps (high)", codecLabel(codec), strconv.FormatFloat(mbps, 'f', 1, 64)),
			}
		case in.Bitrate >= p.TinyBitrate:
			return Decision{
				Action:           ActionEncode,
				TargetQuality:    p.Quality.Mid,
				SizeGateRequired: true,
				Reason:           fmt.Sprintf("%s at %s Mbps (mid)", codecLabel(codec), strconv.FormatFloat(mbps, 'f', 1, 64)),
			}
		default:
			return Decision{
				Action: ActionSkipTiny,
				Reason: fmt.Sprintf("%s at %s Mbps (too low)", codecLabel(codec), strconv.FormatFloat(mbps, 'f', 2, 64)),
			}
		}
	}

	return Decision{
		Action:           ActionEncode,
		TargetQuality:    p.qualityFor(codec),
		SizeGateRequired: true,
		Reason:           fmt.Sprintf("%s -> %s", codecLabel(codec), strings.TrimSuffix(p.VideoEncoder, "_nvenc")),
	}
}

// Is4K classifies by the smaller edge so portrait and landscape 4K match while
// ultrawide 1080-tall content does not.
func Is4K(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	return min(width, height) > 1080
}

// ScaleFilterFor returns the ffmpeg filter that downscales to 1080p. Portrait
// video constrains the width; everything else constrains the height.
func ScaleFilterFor(width, height int) string {
	return scaleFilter(width, height, 1080)
}

// ScaleFilter returns the downscale filter for this policy's maximum short edge.
func (p Policy) ScaleFilter(width, height int) string {
	edge := p.DownscaleMaxEdge
	if edge <= 0 {
		edge = 1080
	}
	return scaleFilter(width, height, edge)
}

func scaleFilter(width, height, edge int) string {
	if width > 0 && height > width {
		return fmt.Sprintf("scale=%d:-2", edge)
	}
	return fmt.Sprintf("scale=-2:%d", edge)
}

func (p Policy) targetLabel() string {
	return strings.ToUpper(strings.TrimPrefix(p.TargetContainer, "."))
}

func codecLabel(codec string) string {
	switch codec {
	case "":
		return "unknown codec"
	case "h264":
		return "H.264"
	case "hevc":
		return "HEVC"
	case "av1", "vp9":
		return strings.ToUpper(codec)
	default:
		return codec
	}
}

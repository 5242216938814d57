package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Quality tiers used by a Policy. Values are constant-quality levels passed to
// the encoder; lower is better quality and larger output.
type Quality struct {
	FourK   int
	High    int
	Mid     int
	Default int
}

// Policy is one version of the encoding rules.
type Policy struct {
	Version string
	// Tag is embedded in every artifact this policy produces.
	Tag string
	// LegacyTags mark output of earlier policies that must not be reprocessed.
	LegacyTags      []string
	TargetContainer string
	VideoEncoder    string
	// EfficientCodecs are skipped in the target container and remuxed outside it.
	EfficientCodecs []string
	// TieredCodecs are encoded at a quality picked by bitrate, or skipped when tiny.
	TieredCodecs     []string
	TinyBitrate      int64
	HighBitrate      int64
	Quality          Quality
	CodecQuality     map[string]int
	DownscaleMaxEdge int
}

var registry = map[string]Policy{
	"v3": {
		Version:          "v3",
		Tag:              "compressed_hevc_v3",
		LegacyTags:       []string{"compressed_hevc_v2"},
		TargetContainer:  ".mp4",
		VideoEncoder:     "hevc_nvenc",
		EfficientCodecs:  []string{"hevc", "av1"},
		TieredCodecs:     []string{"h264"},
		TinyBitrate:      500_000,
		HighBitrate:      2_000_000,
		Quality:          Quality{FourK: 26, High: 28, Mid: 30, Default: 28},
		CodecQuality:     map[string]int{"vp9": 30},
		DownscaleMaxEdge: 1080,
	},
	"v4": {
		Version:          "v4",
		Tag:              "compressed_h264_v4",
		LegacyTags:       []string{"compressed_hevc_v3", "compressed_hevc_v2"},
		TargetContainer:  ".mp4",
		VideoEncoder:     "h264_nvenc",
		EfficientCodecs:  []string{"hevc", "av1"},
		TieredCodecs:     []string{"h264"},
		TinyBitrate:      500_000,
		HighBitrate:      2_000_000,
		Quality:          Quality{FourK: 26, High: 28, Mid: 30, Default: 28},
		CodecQuality:     map[string]int{"vp9": 30},
		DownscaleMaxEdge: 1080,
	},
}

// DefaultVersion is the policy used when none is configured.
const DefaultVersion = "v4"

// Lookup returns the registered policy for version.
func Lookup(version string) (Policy, error) {
	version = strings.ToLower(strings.TrimSpace(version))
	if version == "" {
		version = DefaultVersion
	}
	p, ok := registry[version]
	if !ok {
		return Policy{}, fmt.Errorf("unknown strategy policy %q (known: %s)", version, strings.Join(Versions(), ", "))
	}
	return p, nil
}

// Versions lists registered policy versions in order.
func Versions() []string {
	out := make([]string, 0, len(registry))
	for v := range registry {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// IsTagged reports whether a container comment carries this policy's tag or a
// legacy tag.
func (p Policy) IsTagged(comment string) bool {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return false
	}
	if p.Tag != "" && strings.Contains(comment, p.Tag) {
		return true
	}
	for _, tag := range p.LegacyTags {
		if strings.Contains(comment, tag) {
			return true
		}
	}
	return false
}

// IsTargetContainer reports whether ext is the policy's output container.
func (p Policy) IsTargetContainer(ext string) bool {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext == p.TargetContainer
}

func (p Policy) isEfficient(codec string) bool {
	return contains(p.EfficientCodecs, codec)
}

func (p Policy) isTiered(codec string) bool {
	return contains(p.TieredCodecs, codec)
}

func (p Policy) qualityFor(codec string) int {
	if q, ok := p.CodecQuality[codec]; ok {
		return q
	}
	return p.Quality.Default
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperfield/yt-channel-downloader/internal/config"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
)

// FallbackSelector is the generic selector every chain ends with
const FallbackSelector = "best"

// QualityPref captures the user's format preferences for one negotiation
type QualityPref struct {
	VideoQuality string // config.QualityBest or a height label like "1080p"
	VideoExt     string // "" means any container
	AudioQuality string // config.QualityBest or a bitrate label like "320k"
	AudioExt     string
	AudioOnly    bool
}

// PrefFromSettings derives a preference from a settings snapshot
func PrefFromSettings(cfg config.Settings) QualityPref {
	return QualityPref{
		VideoQuality: cfg.PreferredVideoQuality,
		VideoExt:     cfg.PreferredVideoFormat,
		AudioQuality: cfg.PreferredAudioQuality,
		AudioExt:     cfg.PreferredAudioFormat,
		AudioOnly:    cfg.AudioOnly,
	}
}

// SelectorChain is an ordered, first-match-wins list of format selectors.
// It is built once per task and immutable afterwards; it always contains at
// least the generic fallback.
type SelectorChain []string

// String renders the chain in yt-dlp alternation syntax
func (sc SelectorChain) String() string {
	return strings.Join(sc, "/")
}

// Relaxed returns the single-selector chain used for the one automatic retry
func Relaxed() SelectorChain {
	return SelectorChain{FallbackSelector}
}

// Negotiate turns resolver candidates and a preference into a selector chain.
// It is a pure function and never fails: with no candidates the chain is the
// generic fallback alone, so negotiation can never block a download.
func Negotiate(candidates []model.FormatCandidate, pref QualityPref) SelectorChain {
	if pref.AudioOnly {
		return negotiateAudio(candidates, pref)
	}
	return negotiateVideo(candidates, pref)
}

func negotiateVideo(candidates []model.FormatCandidate, pref QualityPref) SelectorChain {
	var selectors []string

	ordered := orderedVideoCandidates(candidates, pref)
	for _, fc := range ordered {
		selectors = append(selectors, fc.ID+"+bestaudio")
	}

	if height := ParseTargetHeight(pref.VideoQuality); height > 0 {
		selectors = append(selectors,
			fmt.Sprintf("bestvideo[height<=%d]+bestaudio", height),
			fmt.Sprintf("best[height<=%d]", height),
		)
	}
	if pref.VideoExt != "" {
		selectors = append(selectors,
			fmt.Sprintf("bestvideo[ext=%s]+bestaudio", pref.VideoExt),
			fmt.Sprintf("best[ext=%s]", pref.VideoExt),
		)
	}
	selectors = append(selectors, "bestvideo+bestaudio", FallbackSelector)

	return dedupe(selectors)
}

func negotiateAudio(candidates []model.FormatCandidate, pref QualityPref) SelectorChain {
	var selectors []string

	ordered := orderedAudioCandidates(candidates, pref.AudioExt, pref.AudioQuality)
	for _, fc := range ordered {
		selectors = append(selectors, fc.ID)
	}

	if pref.AudioExt != "" {
		selectors = append(selectors, fmt.Sprintf("bestaudio[ext=%s]", pref.AudioExt))
	}
	selectors = append(selectors, "bestaudio", FallbackSelector)

	return dedupe(selectors)
}

// SelectVideoFormat picks the candidate a download of this preference would
// most likely use; nil when no candidate carries video.
func SelectVideoFormat(candidates []model.FormatCandidate, pref QualityPref) *model.FormatCandidate {
	ordered := orderedVideoCandidates(candidates, pref)
	if len(ordered) == 0 {
		return nil
	}
	fc := ordered[0]
	return &fc
}

// SelectAudioFormat picks the audio stream closest to the requested
// quality/container; nil when no candidate carries audio at all.
func SelectAudioFormat(candidates []model.FormatCandidate, preferredExt, preferredQuality string) *model.FormatCandidate {
	ordered := orderedAudioCandidates(candidates, preferredExt, preferredQuality)
	if len(ordered) == 0 {
		return nil
	}
	fc := ordered[0]
	return &fc
}

func orderedVideoCandidates(candidates []model.FormatCandidate, pref QualityPref) []model.FormatCandidate {
	filtered := filterVideo(candidates, pref.VideoExt)
	if len(filtered) == 0 && pref.VideoExt != "" {
		filtered = filterVideo(candidates, "")
	}
	if len(filtered) == 0 {
		return nil
	}

	target := ParseTargetHeight(pref.VideoQuality)
	out := make([]model.FormatCandidate, len(filtered))
	copy(out, filtered)

	if target <= 0 {
		// "best": height descending, then bitrate descending
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Height != out[j].Height {
				return out[i].Height > out[j].Height
			}
			return out[i].BitrateKbps > out[j].BitrateKbps
		})
		return out
	}

	// Closest to the target, preferring equal-or-lower, tie-broken toward the
	// higher resolution and bitrate.
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := heightSortKey(out[i], target), heightSortKey(out[j], target)
		if ki.delta != kj.delta {
			return ki.delta < kj.delta
		}
		if ki.above != kj.above {
			return !ki.above
		}
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].BitrateKbps > out[j].BitrateKbps
	})
	return out
}

type heightKey struct {
	delta int
	above bool
}

func heightSortKey(fc model.FormatCandidate, target int) heightKey {
	delta := fc.Height - target
	if delta < 0 {
		delta = -delta
	}
	return heightKey{delta: delta, above: fc.Height > target}
}

func orderedAudioCandidates(candidates []model.FormatCandidate, preferredExt, preferredQuality string) []model.FormatCandidate {
	base := filterAudioOnly(candidates)

	filtered := base
	if preferredExt != "" {
		filtered = filterAudioExt(base, preferredExt)
		if len(filtered) == 0 {
			filtered = base
		}
	}
	if len(filtered) == 0 {
		// No pure audio streams; fall back to anything carrying audio
		for _, fc := range candidates {
			if fc.HasAudio {
				filtered = append(filtered, fc)
			}
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	out := make([]model.FormatCandidate, len(filtered))
	copy(out, filtered)

	target := ParseBitrateKbps(preferredQuality)
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := audioBitrate(out[i]), audioBitrate(out[j])
		if target > 0 {
			di, dj := absF(bi-float64(target)), absF(bj-float64(target))
			if di != dj {
				return di < dj
			}
		}
		return bi > bj
	})
	return out
}

func filterVideo(candidates []model.FormatCandidate, ext string) []model.FormatCandidate {
	var out []model.FormatCandidate
	for _, fc := range candidates {
		if !fc.HasVideo || fc.ID == "" {
			continue
		}
		if ext != "" && fc.Ext != ext {
			continue
		}
		out = append(out, fc)
	}
	return out
}

func filterAudioOnly(candidates []model.FormatCandidate) []model.FormatCandidate {
	var out []model.FormatCandidate
	for _, fc := range candidates {
		if fc.AudioOnly() && fc.ID != "" {
			out = append(out, fc)
		}
	}
	return out
}

func filterAudioExt(candidates []model.FormatCandidate, ext string) []model.FormatCandidate {
	var out []model.FormatCandidate
	for _, fc := range candidates {
		if fc.Ext == ext {
			out = append(out, fc)
		}
	}
	return out
}

func audioBitrate(fc model.FormatCandidate) float64 {
	if fc.AudioBitrateKbps > 0 {
		return fc.AudioBitrateKbps
	}
	return fc.BitrateKbps
}

// ParseTargetHeight extracts a pixel height from a quality label such as
// "1080p"; zero for "best" or unparseable labels.
func ParseTargetHeight(quality string) int {
	if quality == "" || quality == config.QualityBest {
		return 0
	}
	return leadingDigits(quality)
}

// ParseBitrateKbps extracts a bitrate from a label such as "320k"; zero for
// "best" or unparseable labels.
func ParseBitrateKbps(quality string) int {
	if quality == "" || quality == config.QualityBest {
		return 0
	}
	return leadingDigits(quality)
}

func leadingDigits(s string) int {
	n := 0
	seen := false
	for _, r := range s {
		if r < '0' || r > '9' {
			if seen {
				break
			}
			continue
		}
		seen = true
		n = n*10 + int(r-'0')
	}
	if !seen {
		return 0
	}
	return n
}

func dedupe(selectors []string) SelectorChain {
	seen := make(map[string]struct{}, len(selectors))
	chain := make(SelectorChain, 0, len(selectors))
	for _, sel := range selectors {
		if _, ok := seen[sel]; ok {
			continue
		}
		seen[sel] = struct{}{}
		chain = append(chain, sel)
	}
	return chain
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package model

// FormatCandidate describes one representation offered by the media resolver.
// Candidates are immutable once produced. A Filesize of zero or below means
// the size is not known in advance.
type FormatCandidate struct {
	ID               string
	Ext              string
	Height           int     // video height in pixels, 0 for audio-only streams
	BitrateKbps      float64 // total or video bitrate (tbr/vbr) in kbps, 0 if unknown
	AudioBitrateKbps float64 // audio bitrate (abr) in kbps, 0 if unknown
	HasVideo         bool
	HasAudio         bool
	Filesize         int64
}

// AudioOnly returns true for candidates with an audio track and no video track
func (fc FormatCandidate) AudioOnly() bool {
	return fc.HasAudio && !fc.HasVideo
}

// MediaInfo is the resolver's view of a single media item
type MediaInfo struct {
	Title       string
	DurationSec int // 0 when the duration is unknown
	Formats     []FormatCandidate
}

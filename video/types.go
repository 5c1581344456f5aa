// Package video shells out to ffprobe/ffmpeg for the media pipeline's
// probe/extract/cut/reframe/finalize stages.
package video

import "fmt"

const (
	TrackTypeVideo = "video"
	TrackTypeAudio = "audio"
)

// InputVideo is the probed shape of a source file, trimmed to the fields
// the clip pipeline needs.
type InputVideo struct {
	Format    string       `json:"format,omitempty"`
	Tracks    []InputTrack `json:"tracks,omitempty"`
	Duration  float64      `json:"duration,omitempty"`
	SizeBytes int64        `json:"size,omitempty"`
}

func (i InputVideo) GetTrack(trackType string) (InputTrack, error) {
	for _, t := range i.Tracks {
		if t.Type == trackType {
			return t, nil
		}
	}
	return InputTrack{}, fmt.Errorf("no %q tracks found", trackType)
}

type VideoTrack struct {
	Width    int64   `json:"width,omitempty"`
	Height   int64   `json:"height,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	Rotation int64   `json:"rotation,omitempty"`
}

type AudioTrack struct {
	Channels   int `json:"channels,omitempty"`
	SampleRate int `json:"sample_rate,omitempty"`
}

type InputTrack struct {
	Type    string `json:"type"`
	Codec   string `json:"codec"`
	Bitrate int64  `json:"bitrate"`

	VideoTrack
	AudioTrack
}

package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParamsMapsKnownPresets(t *testing.T) {
	preset, crf := EncodeParams("fast")
	assert.Equal(t, "veryfast", preset)
	assert.Equal(t, 28, crf)

	preset, crf = EncodeParams("high")
	assert.Equal(t, "slow", preset)
	assert.Equal(t, 18, crf)

	preset, crf = EncodeParams("unknown-value")
	assert.Equal(t, "medium", preset)
	assert.Equal(t, 23, crf)
}

func TestAspectDimsRecognizesThreeEnumeratedValues(t *testing.T) {
	w, h := AspectDims("1:1")
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)

	w, h = AspectDims("16:9")
	assert.Equal(t, 16, w)
	assert.Equal(t, 9, h)

	w, h = AspectDims("garbage")
	assert.Equal(t, 9, w)
	assert.Equal(t, 16, h)
}

func TestInputVideoGetTrackReturnsErrorWhenAbsent(t *testing.T) {
	iv := InputVideo{Tracks: []InputTrack{{Type: TrackTypeVideo}}}

	track, err := iv.GetTrack(TrackTypeVideo)
	require.NoError(t, err)
	assert.Equal(t, TrackTypeVideo, track.Type)

	_, err = iv.GetTrack(TrackTypeAudio)
	require.Error(t, err)
}

func TestFormatTimeProducesFfmpegTimestampSyntax(t *testing.T) {
	assert.Equal(t, "00:00:01.500", formatTime(1.5))
	assert.Equal(t, "00:01:05.000", formatTime(65))
}

func TestParseFpsHandlesFractionAndPlainForms(t *testing.T) {
	fps, err := parseFps("30000/1001")
	require.NoError(t, err)
	assert.InDelta(t, 29.97, fps, 0.01)

	fps, err = parseFps("25")
	require.NoError(t, err)
	assert.Equal(t, 25.0, fps)

	fps, err = parseFps("0/0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, fps)

	_, err = parseFps("1/0")
	require.Error(t, err)
}

func TestEscapeSubtitlesPathEscapesColonsAndBackslashes(t *testing.T) {
	assert.Equal(t, `'C\:\\clips\:a.ass'`, escapeSubtitlesPath(`C:\clips:a.ass`))
}

func TestLetterboxFilterPadsTo9x16Canvas(t *testing.T) {
	// the letterbox filter for a 1080x1920 (9:16) target scales the source
	// down to fit and pads the rest of the canvas.
	vf := letterboxFilter(1080, 1920)
	assert.Contains(t, vf, "pad=1080:1920")
	assert.Contains(t, vf, "force_original_aspect_ratio=decrease")
}

package video

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/vansante/go-ffprobe.v2"

	"github.com/clipcut/clipcut-api/apierrors"
)

var unsupportedVideoCodecs = []string{"mjpeg", "jpeg", "png"}

// Prober probes a local file for container/stream metadata. An interface so
// the pipeline can be exercised against a stub in tests.
type Prober interface {
	ProbeFile(ctx context.Context, path string) (InputVideo, error)
}

type Probe struct{}

// ProbeFile runs ffprobe with exponential-backoff retry, classifying
// failures into the apierrors taxonomy.
func (p Probe) ProbeFile(ctx context.Context, path string) (InputVideo, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(backOff, 3), ctx)); err != nil {
		return InputVideo{}, apierrors.Wrap(apierrors.KindTransientIO, "probing input", err)
	}
	return parseProbeOutput(data)
}

func parseProbeOutput(probeData *ffprobe.ProbeData) (InputVideo, error) {
	videoStream := probeData.FirstVideoStream()
	if videoStream == nil {
		return InputVideo{}, apierrors.New(apierrors.KindUnreadable, "no video stream found")
	}
	for _, codec := range unsupportedVideoCodecs {
		if strings.EqualFold(videoStream.CodecName, codec) {
			return InputVideo{}, apierrors.New(apierrors.KindUnsupportedCodec, videoStream.CodecName+" is not supported")
		}
	}
	if probeData.Format == nil {
		return InputVideo{}, apierrors.New(apierrors.KindUnreadable, "format information missing")
	}

	bitRateValue := videoStream.BitRate
	if bitRateValue == "" {
		bitRateValue = probeData.Format.BitRate
	}
	bitrate, _ := strconv.ParseInt(bitRateValue, 10, 64)

	size, _ := strconv.ParseInt(probeData.Format.Size, 10, 64)

	fps, err := parseFps(videoStream.AvgFrameRate)
	if err != nil || fps == 0 {
		fps, _ = parseFps(videoStream.RFrameRate)
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil {
		duration = probeData.Format.DurationSeconds
	}

	var rotation int64
	if side, err := videoStream.SideDataList.GetSideData("Display Matrix"); err == nil {
		if r, err := side.GetInt("rotation"); err == nil {
			rotation = r
		}
	}

	iv := InputVideo{
		Format: probeData.Format.FormatName,
		Tracks: []InputTrack{{
			Type:    TrackTypeVideo,
			Codec:   videoStream.CodecName,
			Bitrate: bitrate,
			VideoTrack: VideoTrack{
				Width:    int64(videoStream.Width),
				Height:   int64(videoStream.Height),
				FPS:      fps,
				Rotation: rotation,
			},
		}},
		Duration:  duration,
		SizeBytes: size,
	}

	if audio := probeData.FirstAudioStream(); audio != nil {
		sampleRate, _ := strconv.Atoi(audio.SampleRate)
		audioBitrate, _ := strconv.ParseInt(audio.BitRate, 10, 64)
		iv.Tracks = append(iv.Tracks, InputTrack{
			Type:    TrackTypeAudio,
			Codec:   audio.CodecName,
			Bitrate: audioBitrate,
			AudioTrack: AudioTrack{
				Channels:   audio.Channels,
				SampleRate: sampleRate,
			},
		})
	}

	return iv, nil
}

func parseFps(framerate string) (float64, error) {
	if framerate == "" {
		return 0, nil
	}
	parts := strings.SplitN(framerate, "/", 2)
	if len(parts) < 2 {
		return strconv.ParseFloat(framerate, 64)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if den == 0 {
		if num == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("invalid frame rate %q", framerate)
	}
	return float64(num) / float64(den), nil
}

package video

import (
	"bytes"
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// maxHorizontalLoss is the threshold above which a center crop gives way to
// letterboxing.
const maxHorizontalLoss = 0.4

// outputDims is the canvas each aspect_ratio option renders to.
func outputDims(aspectRatio string) (w, h int) {
	switch aspectRatio {
	case "1:1":
		return 1080, 1080
	case "16:9":
		return 1920, 1080
	default: // "9:16"
		return 1080, 1920
	}
}

// Reframe crops or pads a clip to the requested aspect ratio: center-crop
// biased toward the source's own frame (no saliency detector in this core —
// the crop is geometric, centered) and fall back to letterboxing when a
// crop would lose too much content.
func Reframe(inputPath, outputPath, aspectRatio string, srcWidth, srcHeight int64) error {
	targetW, targetH := AspectDims(aspectRatio)
	outW, outH := outputDims(aspectRatio)
	targetRatio := float64(targetW) / float64(targetH)
	srcRatio := float64(srcWidth) / float64(srcHeight)

	var vf string
	if srcRatio > targetRatio {
		cropWidth := targetRatio * float64(srcHeight)
		loss := (float64(srcWidth) - cropWidth) / float64(srcWidth)
		if loss > maxHorizontalLoss {
			vf = letterboxFilter(outW, outH)
		} else {
			vf = fmt.Sprintf("crop=%d:%d,scale=%d:%d", int(cropWidth), srcHeight, outW, outH)
		}
	} else {
		cropHeight := float64(srcWidth) / targetRatio
		loss := (float64(srcHeight) - cropHeight) / float64(srcHeight)
		if loss > maxHorizontalLoss {
			vf = letterboxFilter(outW, outH)
		} else {
			vf = fmt.Sprintf("crop=%d:%d,scale=%d:%d", srcWidth, int(cropHeight), outW, outH)
		}
	}

	var ffmpegErr bytes.Buffer
	err := ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"vf":  vf,
			"c:a": "copy",
			"c:v": "libx264",
		}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).Run()
	if err != nil {
		return fmt.Errorf("error reframing %s [%s]: %w", inputPath, ffmpegErr.String(), err)
	}
	return nil
}

func letterboxFilter(outW, outH int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", outW, outH, outW, outH)
}

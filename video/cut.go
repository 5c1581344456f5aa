package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// formatTime converts a seconds offset into ffmpeg's expected timestamp
// syntax.
func formatTime(timeSeconds float64) string {
	timeMillis := int64(timeSeconds * 1000)
	duration := time.Duration(timeMillis) * time.Millisecond
	formatted := time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(duration)
	return formatted.Format("15:04:05.000")
}

// CutSegment extracts a sub-clip from startTime to endTime (seconds).
// Re-encodes with a tight GOP so the resulting clip remains frame-accurate
// at its boundaries.
func CutSegment(ctx context.Context, inputPath, outputPath string, startTime, endTime float64) error {
	args := []string{
		"-i", inputPath,
		"-ss", formatTime(startTime),
		"-to", formatTime(endTime),
		"-map", "0:v", "-map", "0:a?",
		"-c:v", "libx264",
		"-g", "48",
		"-keyint_min", "48",
		"-sc_threshold", "50",
		"-bf", "0",
		"-c:a", "aac",
		outputPath, "-y",
	}

	cutCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(cutCtx, "ffmpeg", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to cut segment from %s [%s] [%s]: %w", inputPath, stdout.String(), stderr.String(), err)
	}
	return nil
}

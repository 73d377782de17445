package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"watgbridge/internal/constants"

	"github.com/sirupsen/logrus"
)

// Transcoder shells out to ffmpeg for the format conversions neither
// platform accepts natively. Every conversion degrades gracefully: on any
// failure the original path is returned so the relay still delivers.
type Transcoder struct {
	ffmpegPath string
	tempDir    string
	logger     *logrus.Logger
}

func NewTranscoder(ffmpegPath, tempDir string, logger *logrus.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// ToVideoNote converts a video into the square short clip Telegram renders
// as a video note. The frame is center-cropped to the note edge length and
// the duration capped.
func (t *Transcoder) ToVideoNote(ctx context.Context, inputPath string) string {
	outputPath := t.outputPath(inputPath, "note", "mp4")
	edge := fmt.Sprintf("%d", constants.VideoNoteEdgePx)
	args := []string{
		"-y", "-i", inputPath,
		"-t", fmt.Sprintf("%d", constants.VideoNoteMaxDurationSec),
		"-vf", fmt.Sprintf("crop='min(iw,ih)':'min(iw,ih)',scale=%s:%s", edge, edge),
		"-c:v", "libx264", "-preset", "fast",
		"-c:a", "aac",
		outputPath,
	}
	return t.run(ctx, "video note", inputPath, outputPath, args)
}

// ToVoice converts audio into an OPUS ogg that WhatsApp renders as a voice
// message with a waveform.
func (t *Transcoder) ToVoice(ctx context.Context, inputPath string) string {
	outputPath := t.outputPath(inputPath, "voice", "ogg")
	args := []string{
		"-y", "-i", inputPath,
		"-c:a", "libopus", "-b:a", "32k", "-ar", "48000", "-ac", "1",
		outputPath,
	}
	return t.run(ctx, "voice", inputPath, outputPath, args)
}

// ToMP4 converts animations (webm, gifs) into an MP4 clip.
func (t *Transcoder) ToMP4(ctx context.Context, inputPath string) string {
	outputPath := t.outputPath(inputPath, "anim", "mp4")
	args := []string{
		"-y", "-i", inputPath,
		"-movflags", "faststart",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		outputPath,
	}
	return t.run(ctx, "animation", inputPath, outputPath, args)
}

// ToPNG converts a webp sticker into a PNG so it can be sent as a photo
// when the receiving side rejects the sticker format.
func (t *Transcoder) ToPNG(ctx context.Context, inputPath string) string {
	outputPath := t.outputPath(inputPath, "still", "png")
	args := []string{"-y", "-i", inputPath, "-frames:v", "1", outputPath}
	return t.run(ctx, "sticker", inputPath, outputPath, args)
}

func (t *Transcoder) run(ctx context.Context, kind, inputPath, outputPath string, args []string) string {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		t.logger.WithFields(logrus.Fields{
			"kind":   kind,
			"error":  err,
			"detail": lastLine(stderr.String()),
		}).Warn("ffmpeg conversion failed, sending original")
		return inputPath
	}

	if info, err := os.Stat(outputPath); err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		t.logger.WithField("kind", kind).Warn("ffmpeg produced no output, sending original")
		return inputPath
	}

	return outputPath
}

func (t *Transcoder) outputPath(inputPath, suffix, ext string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(t.tempDir, base+"_"+suffix+"."+ext)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// Package processor turns a source file into the artifact a job asks for by
// driving ffmpeg and ffprobe. Tool failures and unsupported inputs are
// reported as *domain.ProcessingError; a cancelled context is returned as is.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type Processor interface {
	Process(ctx context.Context, req Request) (Result, error)
}

type Request struct {
	JobID      string
	SourcePath string
	MediaKind  models.MediaKind
	JobKind    models.JobKind
	// OutDir receives the produced file.
	OutDir string
}

type Result struct {
	Path        string
	Name        string
	ContentType string
}

// ArtifactKey is where a job's output lives in the blob store. It depends on
// nothing but the job, so a redelivered job overwrites its own output.
func ArtifactKey(jobID string, r Result) string {
	return "results/" + jobID + "/" + r.Name
}

// Runner executes an external tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w - %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type Config struct {
	FFmpegPath    string
	FFprobePath   string
	ThumbnailSize int
	ImageFormat   string
	VideoCodec    string
	VideoFormat   string
	Preset        string
	CRF           int
	AudioCodec    string
	AudioBitrate  string
}

func (c Config) withDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.ThumbnailSize <= 0 {
		c.ThumbnailSize = 128
	}
	if c.ImageFormat == "" {
		c.ImageFormat = "webp"
	}
	if c.VideoCodec == "" {
		c.VideoCodec = "libx264"
	}
	if c.VideoFormat == "" {
		c.VideoFormat = "mp4"
	}
	if c.Preset == "" {
		c.Preset = "veryfast"
	}
	if c.CRF <= 0 {
		c.CRF = 28
	}
	if c.AudioCodec == "" {
		c.AudioCodec = "aac"
	}
	if c.AudioBitrate == "" {
		c.AudioBitrate = "128k"
	}
	return c
}

type FFmpeg struct {
	cfg    Config
	runner Runner
}

func New(cfg Config, runner Runner) *FFmpeg {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{cfg: cfg.withDefaults(), runner: runner}
}

func (p *FFmpeg) Process(ctx context.Context, req Request) (Result, error) {
	if req.SourcePath == "" {
		return Result{}, domain.NewProcessingError("validate input", fmt.Errorf("empty source path"))
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = filepath.Dir(req.SourcePath)
	}

	var (
		res Result
		err error
	)
	switch {
	case req.JobKind == models.Thumbnail && req.MediaKind == models.Image:
		res, err = p.imageThumbnail(ctx, req.SourcePath, outDir)
	case req.JobKind == models.Thumbnail && req.MediaKind == models.Video:
		res, err = p.videoThumbnail(ctx, req.SourcePath, outDir)
	case req.JobKind == models.Conversion && req.MediaKind == models.Image:
		res, err = p.convertImage(ctx, req.SourcePath, outDir)
	case req.JobKind == models.Conversion && req.MediaKind == models.Video:
		res, err = p.convertVideo(ctx, req.SourcePath, outDir)
	default:
		return Result{}, domain.NewProcessingError("select pipeline",
			fmt.Errorf("unsupported media kind %q for %s job", req.MediaKind, req.JobKind))
	}
	if err != nil {
		return Result{}, err
	}

	if _, err := os.Stat(res.Path); err != nil {
		return Result{}, domain.NewProcessingError("check output", err)
	}
	return res, nil
}

func (p *FFmpeg) boundingBox() string {
	s := p.cfg.ThumbnailSize
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", s, s, s, s)
}

func (p *FFmpeg) imageThumbnail(ctx context.Context, src, outDir string) (Result, error) {
	res := result(outDir, "thumbnail.png")
	err := p.ffmpeg(ctx, "ffmpeg thumbnail",
		"-y", "-i", src,
		"-vf", p.boundingBox(),
		"-frames:v", "1",
		res.Path,
	)
	return res, err
}

func (p *FFmpeg) videoThumbnail(ctx context.Context, src, outDir string) (Result, error) {
	duration, err := p.mediaDuration(ctx, src)
	if err != nil {
		return Result{}, err
	}
	midpoint := strconv.FormatFloat(duration/2, 'f', 3, 64)

	res := result(outDir, "thumbnail.png")
	err = p.ffmpeg(ctx, "ffmpeg frame capture",
		"-y", "-ss", midpoint, "-i", src,
		"-frames:v", "1",
		"-vf", p.boundingBox(),
		res.Path,
	)
	return res, err
}

func (p *FFmpeg) convertImage(ctx context.Context, src, outDir string) (Result, error) {
	res := result(outDir, "converted."+p.cfg.ImageFormat)
	err := p.ffmpeg(ctx, "ffmpeg image conversion",
		"-y", "-i", src,
		"-frames:v", "1",
		res.Path,
	)
	return res, err
}

func (p *FFmpeg) convertVideo(ctx context.Context, src, outDir string) (Result, error) {
	res := result(outDir, "converted."+p.cfg.VideoFormat)
	err := p.ffmpeg(ctx, "ffmpeg video conversion",
		"-y", "-i", src,
		"-c:v", p.cfg.VideoCodec,
		"-preset", p.cfg.Preset,
		"-crf", strconv.Itoa(p.cfg.CRF),
		"-c:a", p.cfg.AudioCodec,
		"-b:a", p.cfg.AudioBitrate,
		"-movflags", "+faststart",
		res.Path,
	)
	return res, err
}

func (p *FFmpeg) mediaDuration(ctx context.Context, src string) (float64, error) {
	out, err := p.runner.Run(ctx, p.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, domain.NewProcessingError("ffprobe duration", err)
	}
	raw := strings.TrimSpace(string(out))
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.NewProcessingError("ffprobe duration", fmt.Errorf("parse %q: %w", raw, err))
	}
	if d <= 0 {
		return 0, domain.NewProcessingError("ffprobe duration", fmt.Errorf("non-positive duration %v", d))
	}
	return d, nil
}

func (p *FFmpeg) ffmpeg(ctx context.Context, op string, args ...string) error {
	if _, err := p.runner.Run(ctx, p.cfg.FFmpegPath, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewProcessingError(op, err)
	}
	return nil
}

func result(outDir, name string) Result {
	return Result{
		Path:        filepath.Join(outDir, name),
		Name:        name,
		ContentType: contentType(filepath.Ext(name)),
	}
}

func contentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

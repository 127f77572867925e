package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const megabyte = 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// VideoInfo describes the probed properties of a video file
type VideoInfo struct {
	Duration float64
	FPS      float64
	Width    int
	Height   int
}

// Decoder abstracts seeking into a video and rasterizing a single frame.
type Decoder interface {
	// Probe reads the duration, frame rate and dimensions of the video.
	Probe(ctx context.Context, videoPath string) (VideoInfo, error)

	// FrameAt returns a JPEG of the frame visible at the given offset, scaled
	// to width x height. A zero size keeps the source dimensions.
	FrameAt(ctx context.Context, videoPath string, at float64, width, height int) ([]byte, error)
}

// FFmpegDecoder implements Decoder with the ffprobe and ffmpeg binaries
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
	Quality     int // mjpeg qscale, 2 (best) to 31
}

// NewFFmpegDecoder returns a decoder using ffmpeg and ffprobe from PATH
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Quality: 4}
}

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against the first video stream
func (d *FFmpegDecoder) Probe(ctx context.Context, videoPath string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,duration:format=duration",
		"-of", "json",
		videoPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream found")
	}

	stream := res.Streams[0]
	info := VideoInfo{
		Width:  stream.Width,
		Height: stream.Height,
		FPS:    parseRate(stream.AvgFrameRate),
	}
	if info.FPS == 0 {
		info.FPS = parseRate(stream.RFrameRate)
	}

	// Container duration first, stream duration is missing for some muxers (webm, mkv)
	if dur, err := strconv.ParseFloat(res.Format.Duration, 64); err == nil && dur > 0 {
		info.Duration = dur
	} else if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil && dur > 0 {
		info.Duration = dur
	}
	return info, nil
}

// parseRate converts an ffprobe rational such as "30000/1001" to frames per second
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	dn, err := strconv.ParseFloat(den, 64)
	if err != nil || dn == 0 {
		return 0
	}
	return n / dn
}

// FrameAt seeks to the offset and pipes one mjpeg frame out of ffmpeg
func (d *FFmpegDecoder) FrameAt(ctx context.Context, videoPath string, at float64, width, height int) ([]byte, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
	}
	if width > 0 && height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", strconv.Itoa(d.Quality), "-")

	cmd := exec.CommandContext(ctx, d.FFmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed at %.3fs: %w: %s", at, err, strings.TrimSpace(stderr.String()))
	}

	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, megabyte), 64*megabyte)
	scanner.Split(splitJpeg)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("frame scanner failed at %.3fs: %w", at, err)
		}
		return nil, fmt.Errorf("no frame decoded at %.3fs", at)
	}

	frame := make([]byte, len(scanner.Bytes()))
	copy(frame, scanner.Bytes())
	return frame, nil
}

// splitJpeg is a bufio.SplitFunc that yields complete JPEG images bounded by
// the SOI and EOI markers, discarding bytes outside them.
func splitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

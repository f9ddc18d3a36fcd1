package ffmpegsource

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/palthedog/recmari/pkg/ports"
)

// Probe inspects a video file and returns its stream metadata. MP4 family
// containers are parsed directly; anything else falls back to ffprobe.
func Probe(path string, ffprobePath string) (ports.SourceInfo, error) {
	if info, err := probeMP4(path); err == nil {
		return info, nil
	}
	return probeFFprobe(path, ffprobePath)
}

// probeMP4 reads the moov box of a progressive MP4 and derives resolution,
// frame count and frame rate from the video track.
func probeMP4(path string) (ports.SourceInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ports.SourceInfo{}, err
	}
	defer f.Close()

	parsed, err := mp4.DecodeFile(f)
	if err != nil {
		return ports.SourceInfo{}, fmt.Errorf("decode mp4: %w", err)
	}

	moov := parsed.Moov
	if moov == nil && parsed.Init != nil {
		moov = parsed.Init.Moov
	}
	if moov == nil {
		return ports.SourceInfo{}, fmt.Errorf("no moov box in %s", path)
	}

	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}

		info := ports.SourceInfo{
			// Tkhd stores dimensions as 16.16 fixed point.
			Width:  int(trak.Tkhd.Width >> 16),
			Height: int(trak.Tkhd.Height >> 16),
		}

		if trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stsz != nil {
			info.FrameCount = int(trak.Mdia.Minf.Stbl.Stsz.SampleNumber)
		}
		if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 && mdhd.Duration > 0 {
			seconds := float64(mdhd.Duration) / float64(mdhd.Timescale)
			if info.FrameCount > 0 && seconds > 0 {
				info.FPS = float64(info.FrameCount) / seconds
			}
		}

		if info.Width <= 0 || info.Height <= 0 {
			return ports.SourceInfo{}, fmt.Errorf("video track in %s has no dimensions", path)
		}
		return info, nil
	}

	return ports.SourceInfo{}, fmt.Errorf("no video track in %s", path)
}

// probeFFprobe shells out to ffprobe for non-MP4 containers.
func probeFFprobe(path string, ffprobePath string) (ports.SourceInfo, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	cmd := exec.Command(ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-of", "csv=p=0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return ports.SourceInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	return parseFFprobeCSV(strings.TrimSpace(string(out)))
}

// parseFFprobeCSV parses "width,height,num/den[,nb_frames]".
func parseFFprobeCSV(s string) (ports.SourceInfo, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return ports.SourceInfo{}, fmt.Errorf("unexpected ffprobe output: %q", s)
	}

	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return ports.SourceInfo{}, fmt.Errorf("parse width %q: %w", parts[0], err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return ports.SourceInfo{}, fmt.Errorf("parse height %q: %w", parts[1], err)
	}
	fps, err := parseRational(parts[2])
	if err != nil {
		return ports.SourceInfo{}, err
	}

	info := ports.SourceInfo{Width: width, Height: height, FPS: fps}
	if len(parts) >= 4 {
		// nb_frames is "N/A" for streams without an index.
		if n, err := strconv.Atoi(parts[3]); err == nil {
			info.FrameCount = n
		}
	}
	return info, nil
}

// parseRational parses a frame rate expressed as "num/den" or a plain float.
func parseRational(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
		}
		if d == 0 {
			return 0, nil
		}
		return n / d, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
	}
	return v, nil
}

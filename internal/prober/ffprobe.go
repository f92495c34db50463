// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

package prober

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamweaver/internal/models"
)

// killGrace is the wall-clock buffer between the probe deadline and the
// forced subprocess kill.
const killGrace = 5 * time.Second

// ffprobeOutput is the subset of ffprobe's -print_format json output that
// feeds StreamStats.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	Channels     int    `json:"channels"`
	BitRate      string `json:"bit_rate"`
}

// parseFrameRate converts an ffprobe rational like "30000/1001" to fps.
func parseFrameRate(r string) float64 {
	num, den, found := strings.Cut(r, "/")
	if !found {
		f, _ := strconv.ParseFloat(r, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// ffprobe runs the probe subprocess against a stream URL and parses its
// JSON output. The subprocess is force-killed killGrace after the timeout
// and is always reaped before return.
func (p *Prober) ffprobe(ctx context.Context, url string) (*ffprobeOutput, error) {
	timeout := p.cfg.Probe.Timeout
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := p.cfg.Probe.Binary
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(probeCtx, binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		url,
	)
	cmd.WaitDelay = killGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if probeCtx.Err() == context.DeadlineExceeded {
			return nil, context.DeadlineExceeded
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("ffprobe: %s", msg)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("ffprobe output: %w", err)
	}
	return &out, nil
}

// sampleBitrate measures real throughput by reading the stream body for
// the configured sample window. A zero result is not an error; the ffprobe
// container bitrate is used as fallback.
func (p *Prober) sampleBitrate(ctx context.Context, url string) int64 {
	window := p.cfg.Probe.BitrateSampleDuration
	if window <= 0 {
		return 0
	}
	sampleCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	req, err := http.NewRequestWithContext(sampleCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	start := time.Now()
	read, _ := io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 || read <= 0 {
		return 0
	}
	return int64(float64(read*8) / elapsed)
}

// buildStats converts ffprobe output plus the measured bitrate into a
// StreamStats row.
func buildStats(stream models.Stream, out *ffprobeOutput, measured int64, at time.Time) *models.StreamStats {
	st := &models.StreamStats{
		StreamID:    stream.ID,
		StreamName:  stream.Name,
		ProbeStatus: models.ProbeSuccess,
		LastProbed:  at,
		StreamType:  out.Format.FormatName,
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if st.VideoCodec == "" {
				st.VideoCodec = s.CodecName
				st.ResolutionHeight = s.Height
				if s.Width > 0 && s.Height > 0 {
					st.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
				}
				st.FPS = parseFrameRate(s.AvgFrameRate)
				if st.FPS == 0 {
					st.FPS = parseFrameRate(s.RFrameRate)
				}
				if br, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil {
					st.VideoBitrate = br
				}
			}
		case "audio":
			if st.AudioCodec == "" {
				st.AudioCodec = s.CodecName
				st.AudioChannels = s.Channels
			}
		}
	}
	st.Bitrate = measured
	if st.Bitrate == 0 {
		if br, err := strconv.ParseInt(out.Format.BitRate, 10, 64); err == nil {
			st.Bitrate = br
		}
	}
	return st
}

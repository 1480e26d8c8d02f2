package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/overl1te/cyberdeck/internal/stream"
	"github.com/overl1te/cyberdeck/internal/supervisor"
)

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// StreamOffer implements GET /api/stream/offer: it reports the codecs
// and backends available so the client can pick a feed endpoint.
func (a *API) StreamOffer(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.requirePerm(w, r, "perm_stream")
	if !ok {
		return
	}
	cfg := a.Config.Get()
	avail := a.Captures.Availability()
	order := a.Negotiator.Order(queryBackend(r), avail)

	width := a.Stabilizer.Decide(sess.Token, queryInt(r, "width", cfg.WidthLadder[0]), time.Now())
	resp := map[string]any{
		"status":        "ok",
		"backend_order": order,
		"backends":      avail,
		"width":         width,
		"width_ladder":  cfg.WidthLadder,
		"codecs":        []string{"mjpeg", "h264", "h265"},
		"feeds": map[string]string{
			"mjpeg": "/api/video/mjpeg",
			"h264":  "/api/video/h264",
			"h265":  "/api/video/h265",
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryBackend(r *http.Request) string {
	return r.URL.Query().Get("backend")
}

// VideoMJPEG implements GET /api/video/mjpeg: a multipart/x-mixed-replace
// stream negotiated across the pluggable capture backends.
func (a *API) VideoMJPEG(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.requirePerm(w, r, "perm_stream")
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	cfg := a.Config.Get()
	fps := queryInt(r, "fps", 15)
	quality := queryInt(r, "quality", 80)
	requestedWidth := queryInt(r, "width", cfg.WidthLadder[0])
	width := a.Stabilizer.Decide(sess.Token, requestedWidth, time.Now())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessStream, err := stream.OpenMJPEG(ctx, a.Negotiator, a.Captures, a.Supervisor, queryBackend(r), width, fps)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "capture_unavailable")
		return
	}
	defer sessStream.Close()

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	params := stream.StreamParams{
		Width:          width,
		Quality:        quality,
		FPS:            fps,
		Cursor:         r.URL.Query().Get("cursor") != "0",
		Monitor:        queryInt(r, "monitor", 0),
		StaleKeepalive: time.Duration(cfg.MJPEGStaleKeepaliveS * float64(time.Second)),
	}
	stream.WriteMultipart(w, flusher, r.Context().Done(), sessStream.Source, params)
}

// VideoH264 implements GET /api/video/h264: an MPEG-TS/H.264 byte stream
// produced by an ffmpeg subprocess under supervision.
func (a *API) VideoH264(w http.ResponseWriter, r *http.Request) {
	a.videoCodecFeed(w, r, "h264", "video/mp2t")
}

// VideoH265 implements GET /api/video/h265.
func (a *API) VideoH265(w http.ResponseWriter, r *http.Request) {
	a.videoCodecFeed(w, r, "h265", "video/mp2t")
}

func (a *API) videoCodecFeed(w http.ResponseWriter, r *http.Request, codec, contentType string) {
	sess, ok := a.requirePerm(w, r, "perm_stream")
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	fps := queryInt(r, "fps", 30)
	width := a.Stabilizer.Decide(sess.Token, queryInt(r, "width", 1280), time.Now())
	bitrate := stream.LowLatencyBitrateCapKbps(width, fps, codec)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	candidateArgs := ffmpegCodecArgs(width, fps, bitrate, codec)
	s, err := a.Supervisor.Supervise(ctx, []supervisor.Candidate{{Name: "ffmpeg-" + codec, Args: candidateArgs, Gate: supervisor.ByteGate{}}})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "encode_unavailable")
		return
	}
	defer s.Stop()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case chunk, ok := <-s.Chunks:
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func ffmpegCodecArgs(width, fps, bitrateKbps int, codec string) []string {
	vcodec := "libx264"
	if codec == "h265" {
		vcodec = "libx265"
	}
	args := []string{
		"ffmpeg", "-loglevel", "error",
		"-f", "x11grab", "-framerate", itoa(fps), "-i", ":0",
		"-vf", "scale=" + itoa(width) + ":-2",
		"-c:v", vcodec,
		"-preset", "ultrafast", "-tune", "zerolatency",
		"-b:v", itoa(bitrateKbps) + "k",
		"-f", "mpegts",
		"pipe:1",
	}
	return args
}

func itoa(n int) string { return strconv.Itoa(n) }

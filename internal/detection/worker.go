package detection

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/JaimeStill/headcount/internal/config"
)

const (
	statusOK    byte = 0
	statusError byte = 1

	maxFaces     = 1024
	maxDimension = 4096
	maxMessage   = 64 * 1024

	// status byte, face count, then per face a box, a dimension, the vector
	// and a confidence.
	maxResponse = 5 + maxFaces*(16+4+4*maxDimension+4)
)

// WorkerPool runs face embedding worker processes. Each worker reads
// [uint32 len][frame] requests on stdin and writes length-prefixed responses on
// file descriptor 3 so its stdout and stderr stay free for logging.
type WorkerPool struct {
	cfg    *config.WorkerConfig
	logger *slog.Logger
	idle   chan *worker

	mu     sync.Mutex
	closed bool
}

type worker struct {
	id    int
	cmd   *exec.Cmd
	stdin *os.File
	data  *os.File
}

// remoteError is reported by a healthy worker; the process stays in the pool.
type remoteError struct {
	msg string
}

func (e *remoteError) Error() string { return "worker: " + e.msg }

// NewWorkerPool starts cfg.PoolSize worker processes.
func NewWorkerPool(cfg *config.WorkerConfig, logger *slog.Logger) (*WorkerPool, error) {
	p := &WorkerPool{
		cfg:    cfg,
		logger: logger,
		idle:   make(chan *worker, cfg.PoolSize),
	}

	for i := range cfg.PoolSize {
		w, err := p.spawn(i)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.idle <- w
	}

	logger.Info("detection workers started", "count", cfg.PoolSize, "command", cfg.Command)
	return p, nil
}

func (p *WorkerPool) Name() string { return config.DetectionWorker }

// Detect sends the encoded frame to an idle worker.
func (p *WorkerPool) Detect(ctx context.Context, _ image.Image, raw []byte) ([]Observation, error) {
	var w *worker
	select {
	case w = <-p.idle:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrWorkerUnavailable, ctx.Err())
	}

	if w.cmd == nil {
		nw, err := p.spawn(w.id)
		if err != nil {
			p.release(w)
			return nil, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
		}
		w = nw
	}

	deadline := time.Now().Add(p.cfg.TimeoutDuration())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	w.stdin.SetWriteDeadline(deadline)
	w.data.SetReadDeadline(deadline)

	obs, err := exchange(w.stdin, w.data, raw)
	if err != nil {
		var re *remoteError
		if !errors.As(err, &re) {
			p.logger.Warn("detection worker failed, restarting", "worker", w.id, "error", err)
			w.stop()
			w = &worker{id: w.id}
		}
		p.release(w)
		return nil, fmt.Errorf("%w: %v", ErrDetect, err)
	}

	p.release(w)
	return obs, nil
}

// Close stops idle workers. Busy workers stop when they are released.
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case w := <-p.idle:
			w.stop()
		default:
			return nil
		}
	}
}

func (p *WorkerPool) release(w *worker) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		w.stop()
		return
	}
	p.idle <- w
}

func (p *WorkerPool) spawn(id int) (*worker, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	dataR, dataW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("create data pipe: %w", err)
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Stdin = stdinR
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{dataW}

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		dataR.Close()
		dataW.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// only the child holds these ends now
	stdinR.Close()
	dataW.Close()

	return &worker{id: id, cmd: cmd, stdin: stdinW, data: dataR}, nil
}

func (w *worker) stop() {
	if w.cmd == nil {
		return
	}
	w.stdin.Close()
	w.data.Close()

	done := make(chan struct{})
	go func() {
		w.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		w.cmd.Process.Kill()
		<-done
	}
	w.cmd = nil
}

func exchange(wr io.Writer, rd io.Reader, frame []byte) ([]Observation, error) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(frame)))
	if _, err := wr.Write(header); err != nil {
		return nil, fmt.Errorf("write request header: %w", err)
	}
	if _, err := wr.Write(frame); err != nil {
		return nil, fmt.Errorf("write request body: %w", err)
	}

	if _, err := io.ReadFull(rd, header); err != nil {
		return nil, fmt.Errorf("read response header: %w", err)
	}
	n := binary.BigEndian.Uint32(header)
	if n > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds %d", n, maxResponse)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(rd, body); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return decodeResponse(body)
}

// decodeResponse parses [status][n]{box int32x4, dim uint32, vec float32 x dim,
// confidence float32} or [1][len][message].
func decodeResponse(body []byte) ([]Observation, error) {
	r := bytes.NewReader(body)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}

	switch status {
	case statusOK:
	case statusError:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("read error length: %w", err)
		}
		if n > maxMessage {
			return nil, fmt.Errorf("error message too long: %d", n)
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("read error message: %w", err)
		}
		return nil, &remoteError{msg: string(msg)}
	default:
		return nil, fmt.Errorf("unknown status byte: %d", status)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read face count: %w", err)
	}
	if count > maxFaces {
		return nil, fmt.Errorf("face count out of range: %d", count)
	}

	out := make([]Observation, 0, count)
	for i := range count {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: read box: %w", i, err)
		}

		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d: read dimension: %w", i, err)
		}
		if dim == 0 || dim > maxDimension {
			return nil, fmt.Errorf("face %d: dimension out of range: %d", i, dim)
		}

		vec := make([]float32, dim)
		if err := binary.Read(r, binary.BigEndian, vec); err != nil {
			return nil, fmt.Errorf("face %d: read vector: %w", i, err)
		}

		var conf float32
		if err := binary.Read(r, binary.BigEndian, &conf); err != nil {
			return nil, fmt.Errorf("face %d: read confidence: %w", i, err)
		}

		desc := make([]float64, dim)
		for j, v := range vec {
			desc[j] = float64(v)
		}

		obs := Observation{
			Box:        Box{X: int(box[0]), Y: int(box[1]), W: int(box[2]), H: int(box[3])},
			Descriptor: desc,
		}
		if c := float64(conf); !math.IsNaN(c) {
			obs.Confidence = &c
		}
		out = append(out, obs)
	}

	return out, nil
}

package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/UnknownOlympus/magma/internal/inference"
	"github.com/cenkalti/backoff/v4"
)

// DefaultServerBinary is looked up in PATH when no binary is configured.
const DefaultServerBinary = "llama-server"

const (
	defaultStartupTimeout = 5 * time.Minute
	defaultRequestTimeout = 2 * time.Minute
	stopTimeout           = 10 * time.Second
)

// Config configures the Backend.
type Config struct {
	// Endpoint attaches to an already running server instead of launching one.
	Endpoint string
	// Binary is the llama-server executable.
	Binary         string
	Host           string
	Port           int // 0 picks a free port
	Threads        int
	StartupTimeout time.Duration
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Backend opens engines served by llama.cpp. It implements inference.Backend.
type Backend struct {
	cfg Config
	log *slog.Logger
}

// NewBackend returns a Backend with defaults filled in.
func NewBackend(cfg Config) *Backend {
	if cfg.Binary == "" {
		cfg.Binary = DefaultServerBinary
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Backend{cfg: cfg, log: log}
}

// Open returns an engine for req. Without an Endpoint it starts a server process for the
// weights and waits until the model is loaded.
func (b *Backend) Open(ctx context.Context, req inference.OpenRequest) (inference.Engine, error) {
	httpClient := &http.Client{Timeout: b.cfg.RequestTimeout}

	if b.cfg.Endpoint != "" {
		client := NewClient(httpClient, b.cfg.Endpoint)
		if err := b.waitReady(ctx, client, nil); err != nil {
			return nil, err
		}
		b.log.InfoContext(ctx, "Attached to llama.cpp server", "endpoint", b.cfg.Endpoint)
		return client, nil
	}

	port := b.cfg.Port
	if port == 0 {
		free, err := freePort(b.cfg.Host)
		if err != nil {
			return nil, err
		}
		port = free
	}

	args := ServerArgs(req, b.cfg.Host, port, b.cfg.Threads)
	cmd := exec.Command(b.cfg.Binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", b.cfg.Binary, err)
	}

	proc := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		close(proc.exited)
	}()

	b.log.InfoContext(ctx, "Started llama.cpp server", "pid", cmd.Process.Pid, "port", port, "args", args)

	client := NewClient(httpClient, "http://"+net.JoinHostPort(b.cfg.Host, strconv.Itoa(port)))
	if err := b.waitReady(ctx, client, proc.exited); err != nil {
		_ = proc.stop()
		return nil, err
	}

	return &serverEngine{Client: client, proc: proc}, nil
}

// waitReady polls /health with exponential backoff until the model is loaded, the process
// exits or the startup timeout elapses.
func (b *Backend) waitReady(ctx context.Context, client *Client, exited <-chan struct{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = b.cfg.StartupTimeout

	check := func() error {
		select {
		case <-exited:
			return backoff.Permanent(errors.New("llama.cpp server exited during startup"))
		default:
		}
		return client.Health(ctx)
	}

	if err := backoff.Retry(check, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("llama.cpp server did not become ready: %w", err)
	}

	return nil
}

// ServerArgs builds the llama-server command line for req.
func ServerArgs(req inference.OpenRequest, host string, port, threads int) []string {
	cacheType := "f32"
	if req.Runtime.Compute == inference.PrecisionFloat16 {
		cacheType = "f16"
	}

	args := []string{
		"--model", req.WeightsPath,
		"--host", host,
		"--port", strconv.Itoa(port),
		"--ctx-size", strconv.Itoa(req.ContextSize),
		"--n-gpu-layers", strconv.Itoa(req.Runtime.GPULayers),
		"--cache-type-k", cacheType,
		"--cache-type-v", cacheType,
		"--parallel", "1",
	}
	if threads > 0 {
		args = append(args, "--threads", strconv.Itoa(threads))
	}

	return args
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("failed to reserve a port: %w", err)
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port, nil
}

type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
	once   sync.Once
}

// stop asks the server to exit and kills it if it does not within stopTimeout.
func (p *process) stop() error {
	var err error
	p.once.Do(func() {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(stopTimeout):
			err = p.cmd.Process.Kill()
			<-p.exited
		}
	})

	return err
}

// serverEngine is a Client that owns its server process.
type serverEngine struct {
	*Client
	proc *process
}

func (e *serverEngine) Close() error {
	return e.proc.stop()
}

package diffusion

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hpcloud/tail"
	process "github.com/mudler/go-processmanager"
	"github.com/phayes/freeport"
	"github.com/rs/zerolog"
)

// WorkerProcessOptions configures a spawned diffusion worker.
type WorkerProcessOptions struct {
	Command string
	Args    []string
	Host    string
	// HFHome is exported as HF_HOME so the worker keeps its model cache under storage.
	HFHome       string
	ReadyTimeout time.Duration
	Log          zerolog.Logger
}

// WorkerProcess is a running worker and the runtime bound to it.
type WorkerProcess struct {
	proc    *process.Process
	tails   []*tail.Tail
	Runtime *WorkerRuntime
}

// SpawnWorker starts the worker on a free port and waits until /health answers.
// The worker receives --addr host:port after the configured args.
func SpawnWorker(ctx context.Context, opts WorkerProcessOptions) (*WorkerProcess, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("%w: no worker command configured", ErrDependencyUnavailable)
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Minute
	}
	port, err := freeport.GetFreePort()
	if err != nil {
		return nil, fmt.Errorf("pick worker port: %w", err)
	}
	addr := fmt.Sprintf("%s:%d", opts.Host, port)
	env := os.Environ()
	if opts.HFHome != "" {
		env = append(env, "HF_HOME="+opts.HFHome)
	}
	p := process.New(
		process.WithTemporaryStateDir(),
		process.WithName(opts.Command),
		process.WithArgs(append(append([]string(nil), opts.Args...), "--addr", addr)...),
		process.WithEnvironment(env...),
	)
	opts.Log.Info().Str("command", opts.Command).Str("addr", addr).Msg("starting diffusion worker")
	if err := p.Run(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	wp := &WorkerProcess{proc: p, Runtime: NewWorkerRuntime("http://"+addr, nil, opts.Log)}
	for stream, path := range map[string]string{"stdout": p.StdoutPath(), "stderr": p.StderrPath()} {
		if t := followLog(opts.Log, path, stream); t != nil {
			wp.tails = append(wp.tails, t)
		}
	}
	deadline := time.Now().Add(opts.ReadyTimeout)
	for {
		if wp.Runtime.Healthy(ctx, 2*time.Second) {
			opts.Log.Info().Str("addr", addr).Str("state_dir", p.StateDir()).Msg("diffusion worker ready")
			return wp, nil
		}
		if !p.IsAlive() {
			wp.stopTails()
			return nil, fmt.Errorf("%w: worker exited during startup (logs in %s)", ErrDependencyUnavailable, p.StateDir())
		}
		if time.Now().After(deadline) {
			_ = wp.Stop()
			return nil, fmt.Errorf("%w: worker not ready after %s", ErrDependencyUnavailable, opts.ReadyTimeout)
		}
		select {
		case <-ctx.Done():
			_ = wp.Stop()
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Stop terminates the worker process and stops following its output.
func (wp *WorkerProcess) Stop() error {
	if wp == nil {
		return nil
	}
	wp.stopTails()
	if wp.proc == nil {
		return nil
	}
	return wp.proc.Stop()
}

func (wp *WorkerProcess) stopTails() {
	for _, t := range wp.tails {
		_ = t.Stop()
		t.Cleanup()
	}
	wp.tails = nil
}

// followLog streams a worker output file into log at debug level until the
// returned tail is stopped.
func followLog(log zerolog.Logger, path, stream string) *tail.Tail {
	t, err := tail.TailFile(path, tail.Config{Follow: true, ReOpen: true, MustExist: false})
	if err != nil {
		log.Debug().Err(err).Str("stream", stream).Msg("could not follow worker output")
		return nil
	}
	go func() {
		for line := range t.Lines {
			log.Debug().Str("stream", stream).Msg(line.Text)
		}
	}()
	return t
}

package sandbox

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/suPer8Hu/codemate/internal/common"
)

type ContainerConfig struct {
	Runtime     string // docker or podman
	Image       string
	Interpreter []string
	Memory      string
	CPUs        string
	PidsLimit   int
	Timeout     time.Duration
	MaxOutput   int
}

// ContainerRunner starts one throwaway container per run and feeds the
// source on stdin.
type ContainerRunner struct {
	cfg ContainerConfig
}

func NewContainerRunner(cfg ContainerConfig) *ContainerRunner {
	if cfg.Runtime == "" {
		cfg.Runtime = "docker"
	}
	if cfg.Image == "" {
		cfg.Image = "python:3.12-alpine"
	}
	if len(cfg.Interpreter) == 0 {
		cfg.Interpreter = []string{"python3", "-"}
	}
	if cfg.Memory == "" {
		cfg.Memory = "128m"
	}
	if cfg.CPUs == "" {
		cfg.CPUs = "0.5"
	}
	if cfg.PidsLimit <= 0 {
		cfg.PidsLimit = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &ContainerRunner{cfg: cfg}
}

func (r *ContainerRunner) args(name string) []string {
	args := []string{
		"run", "--rm", "-i",
		"--name", name,
		"--network", "none",
		"--memory", r.cfg.Memory,
		"--memory-swap", r.cfg.Memory,
		"--cpus", r.cfg.CPUs,
		"--pids-limit", strconv.Itoa(r.cfg.PidsLimit),
		"--read-only",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=16m",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--user", "65534:65534",
		r.cfg.Image,
	}
	return append(args, r.cfg.Interpreter...)
}

func (r *ContainerRunner) Run(ctx context.Context, source string) Result {
	id, err := common.NewULID()
	if err != nil {
		return Result{Output: "Execution failed: " + err.Error()}
	}
	name := "codemate-sbx-" + id

	res := process{
		path:      r.cfg.Runtime,
		args:      r.args(name),
		env:       []string{"PATH=" + os.Getenv("PATH"), "HOME=" + os.Getenv("HOME")},
		timeout:   r.cfg.Timeout,
		maxOutput: r.cfg.MaxOutput,
	}.run(ctx, source)

	if res.TimedOut || ctx.Err() != nil {
		// killing the client does not stop the container
		killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = exec.CommandContext(killCtx, r.cfg.Runtime, "rm", "-f", name).Run()
	}
	return res
}

package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Garmelon/tablejohn/internal/wire"
)

// benchEntrypointName is the fixed path, relative to the bench repo's
// root, that a Repo bench method invokes with the target worktree
// directory as its only argument. The wire format has no field to name an
// alternative, so the bench repo itself must provide this file.
const benchEntrypointName = "run"

// runConfig carries everything one run execution needs.
type runConfig struct {
	id            string
	hash          string
	benchMethod   wire.BenchMethod
	start         time.Time
	serverBaseURL string
	httpClient    *http.Client
	out           *outputBuffer
}

// executeRun downloads the target commit's worktree, dispatches the
// configured bench method against it, and returns the resulting
// FinishedRun. Any error during download or execution is converted into a
// FinishedRun with exit_code -1 and two Internal-source output lines; the
// run is still returned for submission rather than dropped.
func executeRun(ctx context.Context, cfg runConfig) wire.FinishedRun {
	worktreeDir, err := os.MkdirTemp("", "tablejohn-worktree-")
	if err != nil {
		return errorRun(cfg, fmt.Errorf("create worktree dir: %w", err))
	}
	defer os.RemoveAll(worktreeDir)

	treeURL := cfg.serverBaseURL + "/api/worker/repo/" + cfg.hash + "/tree.tar.gz"
	if err := download(ctx, cfg.httpClient, treeURL, worktreeDir); err != nil {
		return errorRun(cfg, fmt.Errorf("download worktree: %w", err))
	}

	var (
		exitCode     int
		measurements map[string]wire.Measurement
	)

	switch cfg.benchMethod.Type {
	case "repo":
		exitCode, measurements, err = cfg.executeRepoBench(ctx, worktreeDir)
	default:
		measurements, err = runInternalBench(worktreeDir)
	}

	if err != nil {
		return errorRun(cfg, err)
	}

	end := time.Now()

	return wire.FinishedRun{
		ID:           cfg.id,
		Hash:         cfg.hash,
		BenchMethod:  cfg.benchMethod.String(),
		Start:        cfg.start,
		End:          &end,
		ExitCode:     exitCode,
		Output:       cfg.out.All(),
		Measurements: measurements,
	}
}

// executeRepoBench downloads the bench repo pinned at cfg.benchMethod.Hash
// and runs its entrypoint against worktreeDir.
func (cfg runConfig) executeRepoBench(ctx context.Context, worktreeDir string) (int, map[string]wire.Measurement, error) {
	benchDir, err := os.MkdirTemp("", "tablejohn-bench-")
	if err != nil {
		return -1, nil, fmt.Errorf("create bench repo dir: %w", err)
	}
	defer os.RemoveAll(benchDir)

	benchURL := cfg.serverBaseURL + "/api/worker/bench_repo/" + cfg.benchMethod.Hash + "/tree.tar.gz"
	if err := download(ctx, cfg.httpClient, benchURL, benchDir); err != nil {
		return -1, nil, fmt.Errorf("download bench repo: %w", err)
	}

	entrypoint := filepath.Join(benchDir, benchEntrypointName)

	return runRepoBench(ctx, entrypoint, worktreeDir, cfg.out)
}

func errorRun(cfg runConfig, err error) wire.FinishedRun {
	cfg.out.Append(wire.SourceInternal, "Internal error:")
	cfg.out.Append(wire.SourceInternal, err.Error())

	end := time.Now()

	return wire.FinishedRun{
		ID:           cfg.id,
		Hash:         cfg.hash,
		BenchMethod:  cfg.benchMethod.String(),
		Start:        cfg.start,
		End:          &end,
		ExitCode:     -1,
		Output:       cfg.out.All(),
		Measurements: map[string]wire.Measurement{},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	resvgruntime "github.com/wippyai/resvg-runtime"
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions = 0o644 // rw-r--r--: owner read+write, others read
)

// stdio is the path for stdin input and stdout output.
const stdio = "-"

// Sentinel errors for batch operations.
var (
	ErrNoInput     = errors.New("no input specified")
	ErrReadInput   = errors.New("failed to read input")
	ErrWriteOutput = errors.New("failed to write PNG file")
)

// Renderer is the render service used by the batch.
type Renderer interface {
	RenderToPNG(ctx context.Context, svg string, opts *resvgruntime.Options) ([]byte, error)
}

// Job is one input and where its PNG goes.
type Job struct {
	InputPath  string
	OutputPath string
}

// Result holds the outcome of a single render.
type Result struct {
	Job
	Err      error
	Bytes    int
	Duration time.Duration
}

// discoverJobs expands inputs into jobs. Directories contribute every .svg
// file under them. output is a file for a single file input, otherwise a
// directory mirroring the inputs; empty writes next to each input.
func discoverJobs(inputs []string, output string) ([]Job, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInput
	}

	var jobs []Job
	for _, in := range inputs {
		if in == stdio {
			out := output
			if out == "" {
				out = stdio
			}
			jobs = append(jobs, Job{InputPath: stdio, OutputPath: out})
			continue
		}

		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
		}
		if !info.IsDir() {
			jobs = append(jobs, Job{InputPath: in})
			continue
		}

		err = filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".svg") {
				return nil
			}
			rel, err := filepath.Rel(in, path)
			if err != nil {
				return err
			}
			job := Job{InputPath: path}
			if output != "" && output != stdio {
				job.OutputPath = filepath.Join(output, pngName(rel))
			}
			jobs = append(jobs, job)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
		}
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no .svg files found", ErrNoInput)
	}

	singleFile := len(jobs) == 1 && len(inputs) == 1
	for i := range jobs {
		j := &jobs[i]
		if j.OutputPath != "" {
			continue
		}
		switch {
		case output == "":
			j.OutputPath = pngName(j.InputPath)
		case output == stdio:
			if !singleFile {
				return nil, fmt.Errorf("%w: stdout output needs a single input", ErrUsage)
			}
			j.OutputPath = stdio
		case singleFile && strings.EqualFold(filepath.Ext(output), ".png"):
			j.OutputPath = output
		default:
			j.OutputPath = filepath.Join(output, filepath.Base(pngName(j.InputPath)))
		}
	}
	return jobs, nil
}

func pngName(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
}

// renderBatch renders jobs with up to workers concurrent renders. Each
// result is reported to progress as it completes, from worker goroutines.
func renderBatch(ctx context.Context, r Renderer, jobs []Job, opts *resvgruntime.Options, workers int, streams stdioFiles, progress func(Result)) []Result {
	if len(jobs) == 0 {
		return nil
	}
	workers = max(1, min(workers, len(jobs)))

	results := make([]Result, len(jobs))
	queue := make(chan int, len(jobs))
	for i := range jobs {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				if err := ctx.Err(); err != nil {
					results[idx] = Result{Job: jobs[idx], Err: err}
				} else {
					results[idx] = renderFile(ctx, r, jobs[idx], opts, streams)
				}
				if progress != nil {
					progress(results[idx])
				}
			}
		}()
	}
	wg.Wait()
	return results
}

// stdioFiles provides the streams for "-" paths.
type stdioFiles struct {
	in  io.Reader
	out io.Writer
}

func renderFile(ctx context.Context, r Renderer, job Job, opts *resvgruntime.Options, streams stdioFiles) Result {
	start := time.Now()
	result := Result{Job: job}
	svg, err := readInput(job.InputPath, streams.in)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	out, err := r.RenderToPNG(ctx, svg, opts)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}
	result.Bytes = len(out)

	if err := writeOutput(job.OutputPath, out, streams.out); err != nil {
		result.Err = err
	}
	result.Duration = time.Since(start)
	return result
}

func readInput(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == stdio {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- discovered path
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrReadInput, path, err)
	}
	return string(data), nil
}

func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == stdio {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("%w: stdout: %w", ErrWriteOutput, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	// #nosec G306 -- PNGs are meant to be readable
	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	return nil
}

// ResultSummary holds the count of succeeded and failed renders.
type ResultSummary struct {
	FirstErr  error
	Succeeded int
	Failed    int
}

func countResults(results []Result) ResultSummary {
	var s ResultSummary
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			if s.FirstErr == nil {
				s.FirstErr = r.Err
			}
		} else {
			s.Succeeded++
		}
	}
	return s
}

// batchError returns nil when every render succeeded, otherwise an error
// wrapping the first failure so its exit code applies.
func batchError(s ResultSummary) error {
	if s.Failed == 0 {
		return nil
	}
	if s.Failed == 1 && s.Succeeded == 0 {
		return s.FirstErr
	}
	return fmt.Errorf("%d of %d renders failed: %w", s.Failed, s.Failed+s.Succeeded, s.FirstErr)
}

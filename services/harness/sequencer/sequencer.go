// Copyright (C) 2025 The SMATA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sequencer executes per-app initialization sequences: the ordered
// steps that walk an app past login screens, permission dialogs, and
// onboarding before exploration starts.
//
// Sequences are registered once and reused across sessions. Initialization
// is opt-in per app: a package with no registered sequence initializes
// trivially.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Saher-Elsayed/SMATA/pkg/logging"
	"github.com/Saher-Elsayed/SMATA/pkg/validation"
	"github.com/Saher-Elsayed/SMATA/services/harness/history"
)

// StepType enumerates the supported initialization step kinds.
type StepType string

const (
	StepClick           StepType = "click"
	StepTextInput       StepType = "text_input"
	StepSwipe           StepType = "swipe"
	StepWait            StepType = "wait"
	StepAssertVisible   StepType = "assert_visible"
	StepBack            StepType = "back"
	StepPermissionGrant StepType = "permission_grant"
	StepPermissionDeny  StepType = "permission_deny"
	StepCustom          StepType = "custom"
)

var stepTypes = map[StepType]struct{}{
	StepClick:           {},
	StepTextInput:       {},
	StepSwipe:           {},
	StepWait:            {},
	StepAssertVisible:   {},
	StepBack:            {},
	StepPermissionGrant: {},
	StepPermissionDeny:  {},
	StepCustom:          {},
}

// ParseStepType converts a wire-format step type. Unknown values are a
// hard error; silently skipping a typo'd step would leave the app in an
// unknown state for every later step.
func ParseStepType(s string) (StepType, error) {
	t := StepType(s)
	if _, ok := stepTypes[t]; !ok {
		return "", fmt.Errorf("unknown step type %q", s)
	}
	return t, nil
}

// defaultStepTimeout bounds a single step attempt when the step does not
// declare its own timeout.
const defaultStepTimeout = 10 * time.Second

// defaultRetryBackoff is the pause between failed attempts of one step.
const defaultRetryBackoff = 500 * time.Millisecond

// defaultExecLogCapacity bounds the execution-result history.
const defaultExecLogCapacity = 128

// ErrSequenceNotFound is returned by ExportSequence for unregistered
// packages.
var ErrSequenceNotFound = errors.New("sequence not found")

// Step is one initialization action.
type Step struct {
	Type        StepType `json:"type"`
	Target      string   `json:"target,omitempty"`
	Value       string   `json:"value,omitempty"`
	TimeoutMS   int      `json:"timeout_ms,omitempty"`
	Description string   `json:"description,omitempty"`
	Optional    bool     `json:"optional,omitempty"`
	RetryCount  int      `json:"retry_count,omitempty"`
}

// Timeout returns the per-attempt deadline for the step.
func (s Step) Timeout() time.Duration {
	if s.TimeoutMS > 0 {
		return time.Duration(s.TimeoutMS) * time.Millisecond
	}
	return defaultStepTimeout
}

// Sequence is the registered initialization recipe for one app package.
type Sequence struct {
	Package           string   `json:"package"`
	Steps             []Step   `json:"init_sequence"`
	Preconditions     []string `json:"preconditions,omitempty"`
	Postconditions    []string `json:"postconditions,omitempty"`
	EstimatedDuration float64  `json:"estimated_duration,omitempty"`
}

// StepError records one required-step failure. StepIndex is 1-based to
// match how step lists are written in configuration.
type StepError struct {
	StepIndex   int    `json:"step_index"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error"`
}

// Result is the outcome of one initialization run.
type Result struct {
	Package        string      `json:"package"`
	Success        bool        `json:"success"`
	StepsCompleted int         `json:"steps_completed"`
	StepsTotal     int         `json:"steps_total"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	Errors         []StepError `json:"errors,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
}

// StepRunner performs one step against the device. Implementations live in
// the tool adapter; the sequencer owns ordering, retries, and accounting.
type StepRunner interface {
	RunStep(ctx context.Context, pkg string, step Step) error
}

// RunnerFunc adapts a function to the StepRunner interface.
type RunnerFunc func(ctx context.Context, pkg string, step Step) error

// RunStep calls f.
func (f RunnerFunc) RunStep(ctx context.Context, pkg string, step Step) error {
	return f(ctx, pkg, step)
}

// NopRunner succeeds every step without touching a device. Useful for
// validating sequences and for dry runs.
var NopRunner = RunnerFunc(func(context.Context, string, Step) error { return nil })

// Options configures a Sequencer.
type Options struct {
	Logger *logging.Logger
	Clock  func() time.Time

	// Runner executes individual steps; NopRunner when nil.
	Runner StepRunner

	// RetryBackoff is the pause between failed attempts;
	// defaultRetryBackoff when 0, no pause when negative.
	RetryBackoff time.Duration

	// ExecLogCapacity bounds the result history; defaultExecLogCapacity
	// when <= 0.
	ExecLogCapacity int
}

// Sequencer holds the registered sequence library and runs initializations.
type Sequencer struct {
	mu        sync.Mutex
	logger    *logging.Logger
	now       func() time.Time
	runner    StepRunner
	backoff   time.Duration
	sequences map[string]Sequence
	execLog   *history.Ring[Result]
}

// New creates a Sequencer with an empty library.
func New(opts Options) *Sequencer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	runner := opts.Runner
	if runner == nil {
		runner = NopRunner
	}
	backoff := opts.RetryBackoff
	if backoff == 0 {
		backoff = defaultRetryBackoff
	}
	capacity := opts.ExecLogCapacity
	if capacity <= 0 {
		capacity = defaultExecLogCapacity
	}
	return &Sequencer{
		logger:    logger.With("component", "sequencer"),
		now:       now,
		runner:    runner,
		backoff:   backoff,
		sequences: make(map[string]Sequence),
		execLog:   history.NewRing[Result](capacity),
	}
}

// Register adds a sequence to the library, replacing any previous sequence
// for the same package. The package name and every step type are validated
// here so a malformed sequence fails loudly at load time, not mid-run.
func (s *Sequencer) Register(seq Sequence) error {
	if err := validation.ValidatePackageName(seq.Package); err != nil {
		return fmt.Errorf("register sequence: %w", err)
	}
	for i, step := range seq.Steps {
		if _, err := ParseStepType(string(step.Type)); err != nil {
			return fmt.Errorf("register sequence for %s: step %d: %w", seq.Package, i+1, err)
		}
	}

	stored := seq
	stored.Steps = append([]Step(nil), seq.Steps...)
	stored.Preconditions = append([]string(nil), seq.Preconditions...)
	stored.Postconditions = append([]string(nil), seq.Postconditions...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[stored.Package] = stored
	s.logger.Info("sequence registered", "package", stored.Package, "steps", len(stored.Steps))
	return nil
}

// Initialize runs the registered sequence for pkg.
//
// # Description
//
// Steps execute strictly in declared order. Each step gets up to its
// retry_count attempts (minimum one) with a fixed backoff between
// attempts. A failed optional step is logged and skipped; a failed
// required step appends an error entry and halts the run immediately.
//
// A run succeeds when every step completed or when no errors were
// recorded. The two legs differ: an optional-step failure leaves
// completed < total but records no error, so the run still succeeds.
//
// A package with no registered sequence succeeds trivially with zero
// total steps.
//
// # Thread Safety
//
// Safe for concurrent use. The library lock is not held while steps run,
// so a slow device cannot block Register or ListSequences.
func (s *Sequencer) Initialize(ctx context.Context, pkg string) Result {
	s.mu.Lock()
	seq, ok := s.sequences[pkg]
	s.mu.Unlock()

	start := s.now()
	res := Result{Package: pkg, StartedAt: start}
	if !ok {
		res.Success = true
		s.logger.Info("no sequence registered, trivial init", "package", pkg)
		s.appendResult(res)
		return res
	}

	res.StepsTotal = len(seq.Steps)
	for i, step := range seq.Steps {
		err := s.runStep(ctx, pkg, step)
		if err == nil {
			res.StepsCompleted++
			continue
		}
		if step.Optional {
			s.logger.Warn("optional init step failed, continuing",
				"package", pkg, "step", i+1, "type", string(step.Type), "error", err.Error())
			continue
		}
		res.Errors = append(res.Errors, StepError{
			StepIndex:   i + 1,
			Description: step.Description,
			Error:       err.Error(),
		})
		s.logger.Error("required init step failed, halting",
			"package", pkg, "step", i+1, "type", string(step.Type), "error", err.Error())
		break
	}

	res.Success = res.StepsCompleted == res.StepsTotal || len(res.Errors) == 0
	res.ElapsedSeconds = s.now().Sub(start).Seconds()

	s.logger.Info("initialization finished",
		"package", pkg,
		"success", res.Success,
		"completed", res.StepsCompleted,
		"total", res.StepsTotal,
	)
	s.appendResult(res)
	return res
}

// runStep attempts one step up to its retry budget.
func (s *Sequencer) runStep(ctx context.Context, pkg string, step Step) error {
	attempts := step.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout())
		err := s.runner.RunStep(stepCtx, pkg, step)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warn("init step attempt failed",
			"package", pkg, "type", string(step.Type), "attempt", attempt, "of", attempts, "error", err.Error())

		if attempt < attempts && s.backoff > 0 {
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return fmt.Errorf("step aborted: %w", ctx.Err())
			}
		}
	}
	return lastErr
}

func (s *Sequencer) appendResult(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execLog.Push(res)
}

// ListSequences returns the registered package names, sorted.
func (s *Sequencer) ListSequences() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sequences))
	for pkg := range s.sequences {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// ExportSequence returns a copy of the registered sequence for pkg, or
// ErrSequenceNotFound.
func (s *Sequencer) ExportSequence(pkg string) (Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[pkg]
	if !ok {
		return Sequence{}, fmt.Errorf("%w: %s", ErrSequenceNotFound, pkg)
	}
	out := seq
	out.Steps = append([]Step(nil), seq.Steps...)
	out.Preconditions = append([]string(nil), seq.Preconditions...)
	out.Postconditions = append([]string(nil), seq.Postconditions...)
	return out, nil
}

// ExecutionLog returns the retained initialization results, oldest first.
func (s *Sequencer) ExecutionLog() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execLog.Snapshot()
}

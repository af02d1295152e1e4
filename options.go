// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctest

import (
	"time"

	"github.com/joeycumines/logiface"
)

// runOptions holds configuration for a Runner and its invocations.
// Options passed to NewRunner become defaults for every invocation;
// options passed to Run override them for that invocation only.
type runOptions struct {
	logger              *logiface.Logger[logiface.Event]
	cleanup             func() error
	args                []any
	timeout             time.Duration
	minRuntime          time.Duration
	ignoreWatchers      bool
	includeUnreferenced bool
}

// Option configures a [Runner] or a single invocation.
type Option interface {
	apply(*runOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*runOptions) error
}

func (o *optionImpl) apply(opts *runOptions) error {
	return o.applyFunc(opts)
}

// WithLogger configures structured logging for the runner. A nil logger
// (the default) disables logging entirely, per the logiface nil-receiver
// contract.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTimeout presets the invocation timeout. The timeout watcher is armed
// during setup, before the body runs; the body may replace it via
// [Invocation.SetTimeout]. A non-positive value disables the timeout
// (the default).
func WithTimeout(d time.Duration) Option {
	return &optionImpl{func(opts *runOptions) error {
		opts.timeout = d
		return nil
	}}
}

// WithMinimumRuntime presets the minimum-required-runtime threshold.
// The invocation fails if the body completes in strictly less wall-clock
// time, asserting it genuinely awaited asynchronous work. A non-positive
// value disables the check (the default).
func WithMinimumRuntime(d time.Duration) Option {
	return &optionImpl{func(opts *runOptions) error {
		opts.minRuntime = d
		return nil
	}}
}

// WithIgnoreWatchers disables the referenced-watcher leak check for the
// invocation. By default referenced watchers left pending after the body
// completes fail the test.
func WithIgnoreWatchers(ignore bool) Option {
	return &optionImpl{func(opts *runOptions) error {
		opts.ignoreWatchers = ignore
		return nil
	}}
}

// WithUnreferencedWatchers includes unreferenced watchers in the leak
// check. By default unreferenced watchers are advisory and ignored.
func WithUnreferencedWatchers(include bool) Option {
	return &optionImpl{func(opts *runOptions) error {
		opts.includeUnreferenced = include
		return nil
	}}
}

// WithCleanup sets the cleanup hook invoked after every run, on success
// and failure alike, before the final result inspection. The body may
// replace it via [Invocation.SetCleanup].
func WithCleanup(fn func() error) Option {
	return &optionImpl{func(opts *runOptions) error {
		opts.cleanup = fn
		return nil
	}}
}

// WithArgs binds arguments to the invocation, exposed to the body via
// [Invocation.Args].
func WithArgs(args ...any) Option {
	return &optionImpl{func(opts *runOptions) error {
		opts.args = args
		return nil
	}}
}

// resolveOptions applies opts on top of base.
func resolveOptions(base runOptions, opts []Option) (*runOptions, error) {
	cfg := base
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

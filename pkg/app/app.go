// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app provides wrappers for common [tinyhttpd.App] concerns.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/z5labs/tinyhttpd"
	"github.com/z5labs/tinyhttpd/internal/try"
)

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Recover will wrap the given [tinyhttpd.App] with panic recovery.
// The recovered value is returned as a [try.PanicError].
func Recover(app tinyhttpd.App) tinyhttpd.App {
	return runFunc(func(ctx context.Context) (err error) {
		defer try.Recover(&err)

		return app.Run(ctx)
	})
}

// WithSignalNotifications wraps a given [tinyhttpd.App] in an implementation
// that cancels the [context.Context] that's passed to app.Run if an [os.Signal]
// is received by the running process.
func WithSignalNotifications(app tinyhttpd.App, signals ...os.Signal) tinyhttpd.App {
	return runFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// LifecycleHook represents functionality that needs to be performed
// at a specific "time" relative to the execution of [tinyhttpd.App.Run].
type LifecycleHook interface {
	Run(context.Context) error
}

// LifecycleHookFunc is a convenient helper type for implementing a [LifecycleHook]
// from just a regular func.
type LifecycleHookFunc func(context.Context) error

// Run implements the [LifecycleHook] interface.
func (f LifecycleHookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Lifecycle
type Lifecycle struct {
	// PreRun is executed before the underlying [tinyhttpd.App]. If it
	// fails the App is never run.
	PreRun LifecycleHook

	// PostRun is always executed regardless if the underlying [tinyhttpd.App]
	// returns an error or panics.
	PostRun LifecycleHook
}

// WithLifecycleHooks wraps a given [tinyhttpd.App] in an implementation
// that runs [LifecycleHook]s around the execution of app.Run.
func WithLifecycleHooks(app tinyhttpd.App, lifecycle Lifecycle) tinyhttpd.App {
	return runFunc(func(ctx context.Context) (err error) {
		if lifecycle.PreRun != nil {
			err = lifecycle.PreRun.Run(ctx)
			if err != nil {
				return err
			}
		}

		defer runPostRunHook(ctx, lifecycle.PostRun, &err)

		return app.Run(ctx)
	})
}

// PostRunError wraps a PostRun hook failure so callers can tell it apart
// from the App's own error.
type PostRunError struct {
	Cause error
}

// Error implements the error interface.
func (e PostRunError) Error() string {
	return "post run hook failed: " + e.Cause.Error()
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e PostRunError) Unwrap() error {
	return e.Cause
}

func runPostRunHook(ctx context.Context, hook LifecycleHook, err *error) {
	if hook == nil {
		return
	}

	// the app context is usually cancelled by now, so give
	// the hook one which still allows it to flush
	hookErr := hook.Run(context.WithoutCancel(ctx))
	if hookErr == nil {
		return
	}

	*err = errors.Join(*err, PostRunError{Cause: hookErr})
}

// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package appbuilder provides wrappers for common [tinyhttpd.AppBuilder] concerns.
package appbuilder

import (
	"context"

	"github.com/z5labs/tinyhttpd"
	"github.com/z5labs/tinyhttpd/internal/try"
)

// Recover will wrap the given [tinyhttpd.AppBuilder] with panic recovery.
// The recovered value is returned as a [try.PanicError].
func Recover[T any](builder tinyhttpd.AppBuilder[T]) tinyhttpd.AppBuilder[T] {
	return tinyhttpd.AppBuilderFunc[T](func(ctx context.Context, cfg T) (_ tinyhttpd.App, err error) {
		defer try.Recover(&err)

		return builder.Build(ctx, cfg)
	})
}

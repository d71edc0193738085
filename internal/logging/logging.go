/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging provides the process-wide structured logger and the
// context plumbing used to carry it through the control loop, mirroring
// the zap-to-logr bridge the teacher sets up in cmd/controller/main.go.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

type ctxKey struct{}

// New builds the process logger. devMode selects a human-readable
// console encoder (local runs with PODFIT_DEV set) over the production JSON
// encoder (cmd/podfit-controller in normal operation).
func New(devMode bool) (logr.Logger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	if devMode {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger logr.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the discard logger
// if none was set.
func FromContext(ctx context.Context) logr.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(logr.Logger); ok {
		return logger
	}
	return logr.Discard()
}

/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package region

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/shmring/pkg/region"

// Option configures Create, Attach and AttachWithRetry.
type Option func(*options)

type options struct {
	tracer tracer
}

// WithTracer makes Create and Attach record a span per call.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = tracer{t}
		}
	}
}

func newOptions(opts []Option) options {
	o := options{tracer: tracer{noop.NewTracerProvider().Tracer(instrumentationName)}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type tracer struct {
	trace.Tracer
}

func (t tracer) start(ctx context.Context, name, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("region.path", path))
	return t.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// DefaultAttachBackOff retries every 10ms at first, growing to once a second,
// until the context passed to AttachWithRetry ends.
func DefaultAttachBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// AttachWithRetry calls Attach until it succeeds, waiting between attempts as
// b says. Only ErrRegionUnavailable and ErrRegionNotReady are retried. It
// gives up when b stops or ctx ends.
func AttachWithRetry(ctx context.Context, path string, b backoff.BackOff, opts ...Option) (*Region, error) {
	var r *Region
	op := func() error {
		var err error
		r, err = Attach(ctx, path, opts...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrRegionUnavailable), errors.Is(err, ErrRegionNotReady):
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		logger.Debugf("waiting for %s: %v, next attempt in %s", path, err, next)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return r, nil
}

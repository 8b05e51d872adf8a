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

// Package poller holds the idle strategies that turn the non-blocking ring
// operations into waiting loops. A Poller is called once per attempt that
// found no work and reset once work is done.
//
//	p.Reset()
//	for !tryOnce() {
//		p.Idle()
//	}
//
// Pollers keep per-loop state and are not safe for concurrent use. Give each
// goroutine its own, see Factory.
package poller

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Poller decides what a waiting loop does between failed attempts.
type Poller interface {
	// Idle is called once per failed attempt.
	Idle()
	// Reset is called when a wait starts, or after work was done.
	Reset()
}

// ErrUnknownStrategy is returned by New and Factory for an unknown name.
var ErrUnknownStrategy = errors.New("poller: unknown strategy")

// Strategy names accepted by New and Factory.
const (
	StrategySpin    = "spin"
	StrategyYield   = "yield"
	StrategySleep   = "sleep"
	StrategyBackoff = "backoff"
)

// Defaults used by New.
const (
	DefaultSleepPeriod = 100 * time.Microsecond
	DefaultMaxSpins    = 10
	DefaultMaxYields   = 20
	DefaultMinPark     = time.Microsecond
	DefaultMaxPark     = time.Millisecond
)

// BusySpin returns immediately. Lowest latency, one core per waiting loop.
type BusySpin struct{}

func (BusySpin) Idle()  {}
func (BusySpin) Reset() {}

// Yielding gives up the processor to other goroutines on every idle.
type Yielding struct{}

func (Yielding) Idle()  { runtime.Gosched() }
func (Yielding) Reset() {}

// Sleeping sleeps for Period on every idle.
type Sleeping struct {
	Period time.Duration
}

func (s Sleeping) Idle()  { time.Sleep(s.Period) }
func (s Sleeping) Reset() {}

// Backoff spins MaxSpins times, then yields MaxYields times, then parks for
// exponentially growing periods between MinPark and MaxPark. The zero value
// parks right away, between DefaultMinPark and DefaultMaxPark.
type Backoff struct {
	MaxSpins  int
	MaxYields int
	MinPark   time.Duration
	MaxPark   time.Duration

	spins  int
	yields int
	park   *backoff.ExponentialBackOff
	sleep  func(time.Duration)
}

// NewBackoff returns a Backoff poller.
func NewBackoff(maxSpins, maxYields int, minPark, maxPark time.Duration) *Backoff {
	return &Backoff{
		MaxSpins:  maxSpins,
		MaxYields: maxYields,
		MinPark:   minPark,
		MaxPark:   maxPark,
	}
}

func (b *Backoff) Idle() {
	switch {
	case b.spins < b.MaxSpins:
		b.spins++
	case b.yields < b.MaxYields:
		b.yields++
		runtime.Gosched()
	default:
		d := b.parker().NextBackOff()
		if b.sleep != nil {
			b.sleep(d)
		} else {
			time.Sleep(d)
		}
	}
}

func (b *Backoff) Reset() {
	b.spins = 0
	b.yields = 0
	if b.park != nil {
		b.park.Reset()
	}
}

func (b *Backoff) parker() *backoff.ExponentialBackOff {
	if b.park != nil {
		return b.park
	}
	minPark, maxPark := b.MinPark, b.MaxPark
	if minPark <= 0 {
		minPark = DefaultMinPark
	}
	if maxPark < minPark {
		maxPark = max(DefaultMaxPark, minPark)
	}
	b.park = backoff.NewExponentialBackOff()
	b.park.InitialInterval = minPark
	b.park.MaxInterval = maxPark
	b.park.Multiplier = 2
	b.park.RandomizationFactor = 0
	b.park.MaxElapsedTime = 0
	b.park.Reset()
	return b.park
}

// IdleFor runs one duty cycle step: a loop that did workCount units of work
// resets p, one that did none idles.
func IdleFor(p Poller, workCount int) {
	if workCount > 0 {
		p.Reset()
		return
	}
	p.Idle()
}

// New returns a fresh poller for the named strategy with default settings.
func New(name string) (Poller, error) {
	f, err := Factory(name)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// Factory returns a constructor for the named strategy. Every call of the
// constructor returns an independent poller.
func Factory(name string) (func() Poller, error) {
	switch name {
	case StrategySpin:
		return func() Poller { return BusySpin{} }, nil
	case StrategyYield:
		return func() Poller { return Yielding{} }, nil
	case StrategySleep:
		return func() Poller { return Sleeping{Period: DefaultSleepPeriod} }, nil
	case StrategyBackoff:
		return func() Poller {
			return NewBackoff(DefaultMaxSpins, DefaultMaxYields, DefaultMinPark, DefaultMaxPark)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Strategies lists the names accepted by New and Factory.
func Strategies() []string {
	return []string{StrategySpin, StrategyYield, StrategySleep, StrategyBackoff}
}

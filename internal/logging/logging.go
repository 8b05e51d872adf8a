/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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

// Package logging is the leveled logger shared by the shmring packages.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

// Log levels, lowest first. LevelNoPrint silences every logger.
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

// EnvLogLevel is read once at startup to set the level.
const EnvLogLevel = "SHMRING_LOG_LEVEL"

// Logger writes colored, leveled lines prefixed with time and caller location.
type Logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var (
	level atomic.Int32

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

func init() {
	level.Store(LevelWarn)
	if v := os.Getenv(EnvLogLevel); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			SetLevel(n)
		}
	}
}

// SetLevel changes the level of every logger. The default level is Warn.
// Out-of-range values are ignored.
func SetLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// Level returns the current level.
func Level() int {
	return int(level.Load())
}

// New returns a logger tagged with name. A nil out writes to stdout.
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		name:      name,
		out:       out,
		callDepth: 3,
	}
}

func enabled(l int) bool {
	return int(level.Load()) <= l
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	if !enabled(LevelError) {
		return
	}
	l.writef(LevelError, format, a...)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	if !enabled(LevelWarn) {
		return
	}
	l.writef(LevelWarn, format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	if !enabled(LevelInfo) {
		return
	}
	l.writef(LevelInfo, format, a...)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	if !enabled(LevelDebug) {
		return
	}
	l.writef(LevelDebug, format, a...)
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	if !enabled(LevelTrace) {
		return
	}
	l.writef(LevelTrace, format, a...)
}

func (l *Logger) writef(lv int, format string, a ...interface{}) {
	if _, err := fmt.Fprintf(l.out, l.prefix(lv)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger write failed: %v\n", err)
	}
}

func (l *Logger) prefix(level int) string {
	var buffer [64]byte
	buf := bytes.NewBuffer(buffer[:0])
	_, _ = buf.WriteString(colors[level])
	_, _ = buf.WriteString(levelName[level])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.name)
	_ = buf.WriteByte(' ')
	return buf.String()
}

// location reports the caller of the public logging method.
func (l *Logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth + 1)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}

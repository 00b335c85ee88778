/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package logger is the leveled, field-structured logging surface every
// library package logs through rather than calling fmt.Println or
// log.Printf directly.
package logger

import "github.com/hashicorp/go-hclog"

// Logger is the minimal leveled interface library code depends on. Fields
// are passed as alternating key/value pairs, the same convention hclog's
// own With/Trace/Debug/... calls use.
type Logger interface {
	Trace(msg string, kv ...interface{})
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

type hclogLogger struct {
	l hclog.Logger
}

// New wraps an hclog.Logger so it satisfies Logger.
func New(l hclog.Logger) Logger {
	return &hclogLogger{l: l}
}

// NewDefault builds a Logger with the given name at Info level, the same
// defaults cmd/mc-bench uses for its own top-level logger.
func NewDefault(name string) Logger {
	return New(hclog.New(&hclog.LoggerOptions{Name: name, Level: hclog.Info}))
}

func (h *hclogLogger) Trace(msg string, kv ...interface{}) { h.l.Trace(msg, kv...) }
func (h *hclogLogger) Debug(msg string, kv ...interface{}) { h.l.Debug(msg, kv...) }
func (h *hclogLogger) Info(msg string, kv ...interface{})  { h.l.Info(msg, kv...) }
func (h *hclogLogger) Warn(msg string, kv ...interface{})  { h.l.Warn(msg, kv...) }
func (h *hclogLogger) Error(msg string, kv ...interface{}) { h.l.Error(msg, kv...) }

// Nop is a Logger that discards everything, used where a caller does not
// wire a real logger in.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Trace(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

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

package config

import (
	"fmt"
	"strconv"
	"strings"

	mcerr "github.com/sabouaram/memkit/errors"
)

const (
	ErrorConfigFileRead mcerr.CodeError = iota + mcerr.MinPkgConfig
	ErrorServerSpecParse
	ErrorNoServersConfigured
)

func init() {
	mcerr.RegisterIdFctMessage(ErrorConfigFileRead, getMessage)
	mcerr.RegisterIdFctMessage(ErrorServerSpecParse, getMessage)
	mcerr.RegisterIdFctMessage(ErrorNoServersConfigured, getMessage)
}

func getMessage(code mcerr.CodeError) string {
	switch code {
	case ErrorConfigFileRead:
		return "failed to read the config file"
	case ErrorServerSpecParse:
		return "failed to parse a server specification"
	case ErrorNoServersConfigured:
		return "no servers configured"
	}
	return ""
}

// splitHostPort parses "host:port", defaulting to the standard memcached
// port 11211 when no port is given.
func splitHostPort(s string) (string, int, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, 11211, nil
	}
	host := s[:idx]
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", s, err)
	}
	return host, port, nil
}

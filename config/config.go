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

// Package config binds the client and benchmark settings to a viper
// instance. For the server list, a list given on the CLI takes precedence,
// then the MEMCACHED_SERVERS environment variable, then an optional -P
// file's servers section (viper ranks a bound environment variable above a
// config file value).
package config

import (
	"strings"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ServerSpec is one backend entry, either parsed from a "host:port" item
// (weight 1) on the CLI/environment or decoded from a config file's
// servers section.
type ServerSpec struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Weight uint32 `mapstructure:"weight"`
	UDP    bool   `mapstructure:"udp"`
}

// ClientConfig is every setting the pool and client facade need to talk to
// a memcached deployment.
type ClientConfig struct {
	Servers []ServerSpec

	Distribution string // "modulo", "ketama", "ketama-weighted", "rendezvous"
	Protocol     string // "ascii", "binary"

	Prefix            string
	HashWithPrefixKey bool
	SupportCas        bool
	NoReply           bool

	ServerFailureLimit int
	MaxProbe           int

	ConnectTimeout time.Duration
	RetryTimeout   time.Duration
}

// BenchConfig is every setting the load-generator worker runtime needs,
// mirroring the -T/-c/-n/-t/-x/-X/-W/-d/-R/-U/-B CLI flags.
type BenchConfig struct {
	Threads      int
	Concurrency  int
	ExecNum      int
	RunTime      time.Duration
	ExpectedTPS  int
	ValueSize    int
	WindowSize   int
	DivideFactor int
	Reconnect    bool
	UDP          bool
	Binary       bool

	UDPTimeout time.Duration

	StatsFile string // -F
	Verbose   bool   // -o
}

// New builds a viper instance seeded with every key's default, following
// the binding idiom of the teacher's own viper-backed component
// configuration: defaults first, then an optional file, then environment.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("distribution", "ketama")
	v.SetDefault("protocol", "ascii")
	v.SetDefault("connect_timeout", time.Second)
	v.SetDefault("retry_timeout", 30*time.Second)
	v.SetDefault("server_failure_limit", 0)
	v.SetDefault("max_probe", 20)

	v.SetDefault("threads", 4)
	v.SetDefault("concurrency", 4)
	v.SetDefault("value_size", 64)
	v.SetDefault("divide_factor", 10)
	v.SetDefault("udp_timeout", time.Second)

	v.SetEnvPrefix("")
	_ = v.BindEnv("servers", "MEMCACHED_SERVERS")

	return v
}

// LoadFile merges an optional -P config file (JSON, YAML or TOML,
// inferred from its extension) into v. A missing path is a no-op - the
// flag is optional.
func LoadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return mcerr.New(uint16(ErrorConfigFileRead), "read config file", err)
	}
	return nil
}

// ParseServers splits a "host:port[,host:port...]" list (as used by both
// the CLI's positional argument and the MEMCACHED_SERVERS fallback) into
// ServerSpecs with weight 1 and the protocol's default transport.
func ParseServers(csv string) ([]ServerSpec, error) {
	var out []ServerSpec
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		host, port, err := splitHostPort(item)
		if err != nil {
			return nil, mcerr.New(uint16(ErrorServerSpecParse), "parse server spec "+item, err)
		}
		out = append(out, ServerSpec{Host: host, Port: port, Weight: 1})
	}
	if len(out) == 0 {
		return nil, mcerr.New(uint16(ErrorNoServersConfigured), "no servers configured")
	}
	return out, nil
}

// ServersFromFile decodes a config file's "servers" section (a list of
// {host, port, weight, udp} maps) via mapstructure, giving -P the same
// per-server weight/UDP override the CLI's plain CSV list cannot express.
func ServersFromFile(v *viper.Viper) ([]ServerSpec, error) {
	raw := v.Get("servers")
	if raw == nil {
		return nil, nil
	}
	if csv, ok := raw.(string); ok {
		return ParseServers(csv)
	}

	var specs []ServerSpec
	if err := mapstructure.Decode(raw, &specs); err != nil {
		return nil, mcerr.New(uint16(ErrorServerSpecParse), "decode servers section", err)
	}
	for i := range specs {
		if specs[i].Weight == 0 {
			specs[i].Weight = 1
		}
	}
	return specs, nil
}

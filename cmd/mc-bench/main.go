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

// Command mc-bench drives the load-generator worker runtime against a
// memcached deployment: -T threads, -c total concurrency, -n exec budget
// or -t run time, optional -x rate limit, -X value size and friends. See
// the root command's help output for the full flag table.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sabouaram/memkit/bench"
	mcconfig "github.com/sabouaram/memkit/config"
	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/hashring"
	mclog "github.com/sabouaram/memkit/logger"
	"github.com/sabouaram/memkit/pool"
	"github.com/sabouaram/memkit/stats"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exit codes: 0 success, 1 argument error, 2 runtime error, 3 one or more
// errors reported in the run's stats block. Code 3 covers connect failures,
// connection resets and error replies alike; it does not single out
// connection failures, and there is no retry budget behind it.
const (
	exitOK               = 0
	exitArgumentError    = 1
	exitRuntimeError     = 2
	exitConnectionFailed = 3
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		flagThreads      int
		flagConcurrency  int
		flagExecNum      int
		flagRunTime      time.Duration
		flagExpectedTPS  int
		flagValueSize    int
		flagWindowSize   int
		flagDivideFactor int
		flagReconnect    bool
		flagUDP          bool
		flagBinary       bool
		flagConfigFile   string
		flagStatsFile    string
		flagVerbose      bool
		flagShowVersion  bool
		flagDistribution string
	)

	log := hclog.New(&hclog.LoggerOptions{Name: "mc-bench", Level: hclog.Info})

	result := exitOK

	cmd := &cobra.Command{
		Use:   "mc-bench [host:port[,host:port...]]",
		Short: "Load-generator benchmark worker runtime for a memcached deployment",
		Long: "mc-bench drives T OS-thread-bound reactors, each cooperatively\n" +
			"multiplexing C/T pre-allocated connections, against a pool of\n" +
			"memcached servers until every connection exhausts its exec budget,\n" +
			"the run time elapses, or a shutdown signal arrives.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, argv []string) error {
			if flagShowVersion {
				fmt.Fprintln(c.OutOrStdout(), "mc-bench "+version)
				return nil
			}

			v := mcconfig.New()
			if err := mcconfig.LoadFile(v, flagConfigFile); err != nil {
				result = exitArgumentError
				return err
			}

			servers, err := resolveServers(v, argv)
			if err != nil {
				result = exitArgumentError
				return err
			}

			p := buildPool(servers, flagDistribution)

			cfg := bench.Config{
				Threads:        flagThreads,
				Concurrency:    flagConcurrency,
				ExecNum:        flagExecNum,
				RunTime:        flagRunTime,
				ExpectedTPS:    flagExpectedTPS,
				ValueSize:      flagValueSize,
				WindowSize:     flagWindowSize,
				DivideFactor:   flagDivideFactor,
				Reconnect:      flagReconnect,
				UDP:            flagUDP,
				Binary:         flagBinary,
				ConnectTimeout: time.Second,
				RetryTimeout:   30 * time.Second,
				UDPTimeout:     time.Second,
			}
			if cfg.Threads <= 0 {
				result = exitArgumentError
				return mcerr.New(uint16(bench.ErrorInvalidConcurrency), "threads must be positive")
			}
			if cfg.Concurrency < cfg.Threads {
				result = exitArgumentError
				return mcerr.New(uint16(bench.ErrorInvalidConcurrency), "concurrency must be at least the thread count")
			}

			ctx := context.Background()
			runResult := bench.Execute(ctx, cfg, bench.RunOpts{
				Pool: p,
				OnWarn: func(err error) {
					log.Warn("advisory failure", "error", err)
				},
				Log: mclog.New(log),
			})

			snap := runResult.Stats.Snapshot()
			if flagVerbose {
				printSummary(c, snap)
			}

			if flagStatsFile != "" {
				if err := runResult.Stats.WriteReport(flagStatsFile); err != nil {
					result = exitRuntimeError
					return err
				}
			}

			if len(snap.Errors) > 0 {
				result = exitConnectionFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&flagThreads, "threads", "T", 4, "number of worker threads")
	flags.IntVarP(&flagConcurrency, "concurrency", "c", 4, "total connections across all threads")
	flags.IntVarP(&flagExecNum, "num", "n", 0, "total operation budget across all threads (0 = unbounded, governed by -t)")
	flags.DurationVarP(&flagRunTime, "time", "t", 0, "run time")
	flags.IntVarP(&flagExpectedTPS, "tps", "x", 0, "expected transactions/second budget (0 = unpaced)")
	flags.IntVarP(&flagValueSize, "value-size", "X", 64, "fixed value size in bytes")
	flags.IntVarP(&flagWindowSize, "window", "W", 1, "pipeline depth per connection (accepted for compatibility, not yet honored: logs a warning above 1)")
	flags.IntVarP(&flagDivideFactor, "divide", "d", 10, "get/set mix (1 set in every N operations, the rest gets)")
	flags.BoolVarP(&flagReconnect, "reconnect", "R", false, "reconnect a failed connection once its retry timeout elapses")
	flags.BoolVarP(&flagUDP, "udp", "U", false, "use UDP transport")
	flags.BoolVarP(&flagBinary, "binary", "B", false, "use the binary protocol instead of ASCII")
	flags.StringVarP(&flagConfigFile, "config", "P", "", "config file (JSON/YAML/TOML)")
	flags.StringVarP(&flagStatsFile, "stats-file", "F", "", "write a final stats report to this path")
	flags.BoolVarP(&flagVerbose, "verbose", "o", false, "print a stats summary to stdout")
	flags.BoolVarP(&flagShowVersion, "version", "v", false, "print the version and exit")
	flags.StringVar(&flagDistribution, "distribution", "ketama", "key distribution: modulo, ketama, ketama-weighted, rendezvous")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		if result == exitOK {
			result = exitArgumentError
		}
	}
	return result
}

func resolveServers(v *viper.Viper, argv []string) ([]mcconfig.ServerSpec, error) {
	if len(argv) > 0 {
		return mcconfig.ParseServers(argv[0])
	}
	if specs, err := mcconfig.ServersFromFile(v); err != nil {
		return nil, err
	} else if len(specs) > 0 {
		return specs, nil
	}
	if csv := v.GetString("servers"); csv != "" {
		return mcconfig.ParseServers(csv)
	}
	return nil, mcerr.New(uint16(bench.ErrorNoServers), "no servers given: pass host:port[,...] or set MEMCACHED_SERVERS")
}

func buildPool(servers []mcconfig.ServerSpec, distribution string) *pool.Pool {
	srv := make([]*pool.Server, len(servers))
	for i, s := range servers {
		srv[i] = &pool.Server{Host: s.Host, Port: s.Port, UDP: s.UDP, Weight: s.Weight}
	}

	return pool.Build(srv, pool.Config{
		Policy: parseDistribution(distribution),
		Hash:   hash32,
	})
}

func parseDistribution(s string) hashring.Policy {
	switch s {
	case "modulo":
		return hashring.Modulo
	case "ketama-weighted":
		return hashring.KetamaWeighted
	case "rendezvous":
		return hashring.Rendezvous
	default:
		return hashring.Ketama
	}
}

func hash32(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

// printSummary writes a human-readable report of one run's counters,
// per-operation latency and any reported errors to the command's output.
func printSummary(c *cobra.Command, snap stats.Snapshot) {
	out := c.OutOrStdout()

	fmt.Fprintln(out, color.GreenString("run complete"))
	fmt.Fprintf(out, "  cmd_get=%d cmd_set=%d get_misses=%d\n", snap.CmdGet, snap.CmdSet, snap.GetMisses)
	fmt.Fprintf(out, "  bytes_in=%d bytes_out=%d thread_miss=%d\n", snap.BytesIn, snap.BytesOut, snap.ThreadMiss)
	if snap.PktDrop > 0 || snap.UDPTimeout > 0 {
		fmt.Fprintf(out, "  pkt_drop=%d udp_timeout=%d\n", snap.PktDrop, snap.UDPTimeout)
	}

	for k, l := range snap.Latency {
		if l.Count == 0 {
			continue
		}
		kind := stats.OpKind(k)
		fmt.Fprintf(out, "  %-10s n=%-8d mean=%-10s min=%-10s max=%-10s stddev=%s\n",
			kind, l.Count, l.Mean, l.Min, l.Max, l.StdDev)
	}

	for kind, e := range snap.Errors {
		fmt.Fprintln(out, color.YellowString("  %s: last error [%d] %s", kind, e.Code, e.Message))
	}
}

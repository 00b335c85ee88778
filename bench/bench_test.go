package bench_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sabouaram/memkit/bench"
	"github.com/sabouaram/memkit/hashring"
	"github.com/sabouaram/memkit/pool"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBench(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bench Suite")
}

func fnvHash(b []byte) uint32 {
	var h uint32 = 2166136261
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

func oneServerPool(addr string) *pool.Pool {
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	srv := &pool.Server{Host: host, Port: port}
	return pool.Build([]*pool.Server{srv}, pool.Config{
		Policy: hashring.Modulo,
		Hash:   fnvHash,
	})
}

// startAsciiServer accepts any number of concurrent connections and speaks
// just enough ASCII grammar (set/get) to let a reactor cycle through many
// operations: every set is stored, every get echoes it back.
func startAsciiServer() (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())

	var mu sync.Mutex
	store := map[string][]byte{}

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer GinkgoRecover()
				defer c.Close()
				r := bufio.NewReader(c)

				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					line = strings.TrimRight(line, "\r\n")
					fields := strings.Fields(line)
					if len(fields) == 0 {
						continue
					}

					switch fields[0] {
					case "set":
						key := fields[1]
						n, _ := strconv.Atoi(fields[4])
						body := make([]byte, n+2)
						if _, err := io.ReadFull(r, body); err != nil {
							return
						}
						mu.Lock()
						store[key] = append([]byte(nil), body[:n]...)
						mu.Unlock()
						if _, err := c.Write([]byte("STORED\r\n")); err != nil {
							return
						}
					case "get":
						key := fields[1]
						mu.Lock()
						v, ok := store[key]
						mu.Unlock()
						var out strings.Builder
						if ok {
							out.WriteString("VALUE " + key + " 0 " + strconv.Itoa(len(v)) + "\r\n")
							out.Write(v)
							out.WriteString("\r\n")
						}
						out.WriteString("END\r\n")
						if _, err := c.Write([]byte(out.String())); err != nil {
							return
						}
					default:
						return
					}
				}
			}(c)
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

var _ = Describe("Execute", func() {
	It("drives every connection to its exec budget against a live server", func() {
		addr, stop := startAsciiServer()
		defer stop()

		cfg := bench.Config{
			Threads:        1,
			Concurrency:    2,
			ExecNum:        20,
			DivideFactor:   4,
			ValueSize:      8,
			ConnectTimeout: time.Second,
			RetryTimeout:   time.Second,
			UDPTimeout:     time.Second,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		run := bench.Execute(ctx, cfg, bench.RunOpts{Pool: oneServerPool(addr)})

		Expect(run.ID.String()).ToNot(BeEmpty())

		snap := run.Stats.Snapshot()
		Expect(snap.CmdGet + snap.CmdSet).To(BeNumerically(">=", uint64(cfg.ExecNum)))
	})

	It("stops early once the run's context is cancelled", func() {
		addr, stop := startAsciiServer()
		defer stop()

		cfg := bench.Config{
			Threads:        1,
			Concurrency:    1,
			ConnectTimeout: time.Second,
			RetryTimeout:   time.Second,
			UDPTimeout:     time.Second,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		done := make(chan struct{})
		go func() {
			bench.Execute(ctx, cfg, bench.RunOpts{Pool: oneServerPool(addr)})
			close(done)
		}()

		Eventually(done, 2*time.Second).Should(BeClosed())
	})
})

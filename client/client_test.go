package client_test

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sabouaram/memkit/client"
	"github.com/sabouaram/memkit/hashring"
	"github.com/sabouaram/memkit/pool"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Client Suite")
}

const (
	binOpGet     = 0x00
	binOpSet     = 0x01
	binOpAdd     = 0x02
	binOpReplace = 0x03
	binOpDelete  = 0x04
	binOpIncr    = 0x05
	binOpDecr    = 0x06
	binOpQuit    = 0x07
	binOpGetQ    = 0x09
	binOpNoop    = 0x0A
	binOpGetK    = 0x0C
	binOpGetKQ   = 0x0D
	binOpTouch   = 0x1C
	binOpGat     = 0x1D

	binStatusSuccess  = 0x0000
	binStatusNotFound = 0x0001
	binStatusExists   = 0x0002
	binStatusNotStor  = 0x0005
)

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

type asciiEntry struct {
	value []byte
	flags uint32
	cas   uint64
}

// startAsciiServer runs a minimal in-memory ASCII memcached speaking just
// enough of the grammar to drive the facade end to end: set/add/replace,
// get/gets, delete, incr/decr, flush_all, version, stats, quit.
func startAsciiServer() (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())

	store := map[string]asciiEntry{}
	var casSeq uint64

	go func() {
		defer GinkgoRecover()
		c, err := ln.Accept()
		if err != nil {
			return
		}
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

			noReply := fields[len(fields)-1] == "noreply"
			if noReply {
				fields = fields[:len(fields)-1]
			}

			switch fields[0] {
			case "set", "add", "replace", "cas":
				key := fields[1]
				flags, _ := strconv.ParseUint(fields[2], 10, 32)
				n, _ := strconv.Atoi(fields[4])
				body := make([]byte, n+2)
				_, _ = io.ReadFull(r, body)
				value := body[:n]

				_, exists := store[key]
				var reply string
				switch fields[0] {
				case "add":
					if exists {
						reply = "NOT_STORED\r\n"
						break
					}
					fallthrough
				case "set":
					casSeq++
					store[key] = asciiEntry{append([]byte(nil), value...), uint32(flags), casSeq}
					reply = "STORED\r\n"
				case "replace":
					if !exists {
						reply = "NOT_STORED\r\n"
						break
					}
					casSeq++
					store[key] = asciiEntry{append([]byte(nil), value...), uint32(flags), casSeq}
					reply = "STORED\r\n"
				case "cas":
					if !exists {
						reply = "NOT_FOUND\r\n"
						break
					}
					casSeq++
					store[key] = asciiEntry{append([]byte(nil), value...), uint32(flags), casSeq}
					reply = "STORED\r\n"
				}
				if !noReply {
					_, _ = c.Write([]byte(reply))
				}

			case "get", "gets":
				for _, k := range fields[1:] {
					e, ok := store[k]
					if !ok {
						continue
					}
					header := fmt.Sprintf("VALUE %s %d %d", k, e.flags, len(e.value))
					if fields[0] == "gets" {
						header += fmt.Sprintf(" %d", e.cas)
					}
					_, _ = c.Write([]byte(header + "\r\n"))
					_, _ = c.Write(e.value)
					_, _ = c.Write([]byte("\r\n"))
				}
				_, _ = c.Write([]byte("END\r\n"))

			case "delete":
				key := fields[1]
				_, ok := store[key]
				delete(store, key)
				if !noReply {
					if ok {
						_, _ = c.Write([]byte("DELETED\r\n"))
					} else {
						_, _ = c.Write([]byte("NOT_FOUND\r\n"))
					}
				}

			case "incr", "decr":
				key := fields[1]
				delta, _ := strconv.ParseUint(fields[2], 10, 64)
				e, ok := store[key]
				if !ok {
					if !noReply {
						_, _ = c.Write([]byte("NOT_FOUND\r\n"))
					}
					continue
				}
				cur, _ := strconv.ParseUint(string(e.value), 10, 64)
				if fields[0] == "incr" {
					cur += delta
				} else if delta > cur {
					cur = 0
				} else {
					cur -= delta
				}
				e.value = []byte(strconv.FormatUint(cur, 10))
				store[key] = e
				if !noReply {
					_, _ = c.Write([]byte(strconv.FormatUint(cur, 10) + "\r\n"))
				}

			case "flush_all":
				store = map[string]asciiEntry{}
				if !noReply {
					_, _ = c.Write([]byte("OK\r\n"))
				}

			case "version":
				_, _ = c.Write([]byte("VERSION 1.6.0-test\r\n"))

			case "stats":
				_, _ = c.Write([]byte("STAT pid 1\r\n"))
				_, _ = c.Write([]byte("STAT curr_items " + strconv.Itoa(len(store)) + "\r\n"))
				_, _ = c.Write([]byte("END\r\n"))

			case "quit":
				return
			}
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

func newAsciiClient() (*client.Client, func()) {
	addr, stop := startAsciiServer()
	p := oneServerPool(addr)
	cl := client.New(p, client.Config{
		Protocol:       client.ProtoASCII,
		SupportCas:     true,
		ConnectTimeout: time.Second,
		RetryTimeout:   30 * time.Second,
	})
	return cl, stop
}

var _ = Describe("ASCII protocol", func() {
	var (
		cl   *client.Client
		stop func()
	)

	BeforeEach(func() {
		cl, stop = newAsciiClient()
	})

	AfterEach(func() {
		stop()
	})

	It("stores then retrieves a value", func() {
		Expect(cl.Set([]byte("foo"), []byte("bar"), 0, 0)).To(Succeed())

		res, err := cl.Get([]byte("foo"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(res.Value)).To(Equal("bar"))
	})

	It("returns NotFound on a missing key", func() {
		_, err := cl.Get([]byte("nope"))
		Expect(err).To(HaveOccurred())
	})

	It("fails Add when the key already exists", func() {
		Expect(cl.Add([]byte("k"), []byte("v1"), 0, 0)).To(Succeed())
		Expect(cl.Add([]byte("k"), []byte("v2"), 0, 0)).ToNot(Succeed())
	})

	It("fails Replace when the key is missing", func() {
		Expect(cl.Replace([]byte("ghost"), []byte("v"), 0, 0)).ToNot(Succeed())
	})

	It("increments then decrements, clamping at zero", func() {
		Expect(cl.Set([]byte("n"), []byte("10"), 0, 0)).To(Succeed())

		v, err := cl.Incr([]byte("n"), 5, 0, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint64(15)))

		v, err = cl.Decr([]byte("n"), 20, 0, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint64(0)))
	})

	It("deletes a key", func() {
		Expect(cl.Set([]byte("doomed"), []byte("v"), 0, 0)).To(Succeed())
		Expect(cl.Delete([]byte("doomed"), 0)).To(Succeed())
		_, err := cl.Get([]byte("doomed"))
		Expect(err).To(HaveOccurred())
	})

	It("multi-gets across keys, skipping misses", func() {
		Expect(cl.Set([]byte("a"), []byte("1"), 0, 0)).To(Succeed())
		Expect(cl.Set([]byte("b"), []byte("2"), 0, 0)).To(Succeed())

		out, err := cl.MGet([][]byte{[]byte("a"), []byte("b"), []byte("missing")})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(string(out["a"].Value)).To(Equal("1"))
		Expect(string(out["b"].Value)).To(Equal("2"))
	})

	It("rejects Touch as unsupported on the ASCII protocol", func() {
		Expect(cl.Touch([]byte("x"), 60)).ToNot(Succeed())
	})

	It("flushes, reports version, and reports stats across the pool", func() {
		Expect(cl.Set([]byte("k"), []byte("v"), 0, 0)).To(Succeed())
		Expect(cl.Flush(0)).To(Succeed())

		_, err := cl.Get([]byte("k"))
		Expect(err).To(HaveOccurred())

		versions, err := cl.Version()
		Expect(err).ToNot(HaveOccurred())
		Expect(versions).To(HaveLen(1))

		stats, err := cl.Stats(nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(stats).To(HaveLen(1))
		for _, kv := range stats {
			Expect(kv).To(HaveKey("pid"))
		}
	})
})

type binEntry struct {
	value []byte
	flags uint32
	cas   uint64
}

// startBinaryServer runs a minimal in-memory binary-protocol memcached,
// enough to exercise the GETK+quiet+NOOP multi-get path and the
// binary-only Touch/Gat operations.
func startBinaryServer() (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())

	store := map[string]binEntry{}
	var casSeq uint64

	writeResp := func(c net.Conn, op byte, status uint16, key, extras, value []byte, cas uint64) {
		body := len(extras) + len(key) + len(value)
		hdr := make([]byte, 24)
		hdr[0] = 0x81
		hdr[1] = op
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(key)))
		hdr[4] = byte(len(extras))
		binary.BigEndian.PutUint16(hdr[6:8], status)
		binary.BigEndian.PutUint32(hdr[8:12], uint32(body))
		binary.BigEndian.PutUint64(hdr[16:24], cas)
		_, _ = c.Write(hdr)
		if len(extras) > 0 {
			_, _ = c.Write(extras)
		}
		if len(key) > 0 {
			_, _ = c.Write(key)
		}
		if len(value) > 0 {
			_, _ = c.Write(value)
		}
	}

	go func() {
		defer GinkgoRecover()
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()

		hdr := make([]byte, 24)
		for {
			if _, err := io.ReadFull(c, hdr); err != nil {
				return
			}
			op := hdr[1]
			keyLen := binary.BigEndian.Uint16(hdr[2:4])
			extraLen := hdr[4]
			bodyLen := binary.BigEndian.Uint32(hdr[8:12])
			reqCas := binary.BigEndian.Uint64(hdr[16:24])

			body := make([]byte, bodyLen)
			if bodyLen > 0 {
				if _, err := io.ReadFull(c, body); err != nil {
					return
				}
			}
			extras := body[:extraLen]
			key := string(body[extraLen : int(extraLen)+int(keyLen)])
			value := body[int(extraLen)+int(keyLen):]

			switch op {
			case binOpSet, binOpAdd, binOpReplace:
				_, exists := store[key]
				if op == binOpAdd && exists {
					writeResp(c, op, binStatusNotStor, nil, nil, nil, 0)
					continue
				}
				if op == binOpReplace && !exists {
					writeResp(c, op, binStatusNotStor, nil, nil, nil, 0)
					continue
				}
				if reqCas != 0 {
					if !exists || store[key].cas != reqCas {
						writeResp(c, op, binStatusExists, nil, nil, nil, 0)
						continue
					}
				}
				casSeq++
				flags := binary.BigEndian.Uint32(extras[0:4])
				store[key] = binEntry{value: append([]byte(nil), value...), flags: flags, cas: casSeq}
				writeResp(c, op, binStatusSuccess, nil, nil, nil, casSeq)

			case binOpGet, binOpGetQ, binOpGetK, binOpGetKQ, binOpGat:
				e, ok := store[key]
				if !ok {
					if op == binOpGetQ || op == binOpGetKQ {
						continue // quiet miss: no reply at all
					}
					writeResp(c, op, binStatusNotFound, nil, nil, nil, 0)
					continue
				}
				extrasOut := make([]byte, 4)
				binary.BigEndian.PutUint32(extrasOut, e.flags)
				var keyOut []byte
				if op == binOpGetK || op == binOpGetKQ {
					keyOut = []byte(key)
				}
				writeResp(c, op, binStatusSuccess, keyOut, extrasOut, e.value, e.cas)

			case binOpNoop:
				writeResp(c, op, binStatusSuccess, nil, nil, nil, 0)

			case binOpTouch:
				if _, ok := store[key]; !ok {
					writeResp(c, op, binStatusNotFound, nil, nil, nil, 0)
					continue
				}
				writeResp(c, op, binStatusSuccess, nil, nil, nil, 0)

			case binOpDelete:
				_, ok := store[key]
				delete(store, key)
				if !ok {
					writeResp(c, op, binStatusNotFound, nil, nil, nil, 0)
					continue
				}
				writeResp(c, op, binStatusSuccess, nil, nil, nil, 0)

			case binOpIncr, binOpDecr:
				delta := binary.BigEndian.Uint64(extras[0:8])
				initial := binary.BigEndian.Uint64(extras[8:16])
				e, ok := store[key]
				var cur uint64
				if !ok {
					cur = initial
				} else {
					cur, _ = strconv.ParseUint(string(e.value), 10, 64)
					if op == binOpIncr {
						cur += delta
					} else if delta > cur {
						cur = 0
					} else {
						cur -= delta
					}
				}
				casSeq++
				store[key] = binEntry{value: []byte(strconv.FormatUint(cur, 10)), cas: casSeq}
				valOut := make([]byte, 8)
				binary.BigEndian.PutUint64(valOut, cur)
				writeResp(c, op, binStatusSuccess, nil, nil, valOut, casSeq)

			case binOpQuit:
				return
			}
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

func newBinaryClient() (*client.Client, func()) {
	addr, stop := startBinaryServer()
	p := oneServerPool(addr)
	cl := client.New(p, client.Config{
		Protocol:       client.ProtoBinary,
		ConnectTimeout: time.Second,
		RetryTimeout:   30 * time.Second,
	})
	return cl, stop
}

var _ = Describe("Binary protocol", func() {
	var (
		cl   *client.Client
		stop func()
	)

	BeforeEach(func() {
		cl, stop = newBinaryClient()
	})

	AfterEach(func() {
		stop()
	})

	It("stores then retrieves a value with its flags", func() {
		Expect(cl.Set([]byte("foo"), []byte("bar"), 7, 0)).To(Succeed())

		res, err := cl.Get([]byte("foo"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(res.Value)).To(Equal("bar"))
		Expect(res.Flags).To(Equal(uint32(7)))
	})

	It("multi-gets through the GETK+quiet+NOOP barrier path", func() {
		for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
			Expect(cl.Set([]byte(kv[0]), []byte(kv[1]), 0, 0)).To(Succeed())
		}

		out, err := cl.MGet([][]byte{[]byte("a"), []byte("missing"), []byte("b"), []byte("c")})
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(3))
		Expect(string(out["a"].Value)).To(Equal("1"))
		Expect(string(out["b"].Value)).To(Equal("2"))
		Expect(string(out["c"].Value)).To(Equal("3"))
	})

	It("supports Touch and Gat, binary-only operations", func() {
		Expect(cl.Set([]byte("k"), []byte("v"), 0, 0)).To(Succeed())
		Expect(cl.Touch([]byte("k"), 120)).To(Succeed())

		res, err := cl.Gat([]byte("k"), 60)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(res.Value)).To(Equal("v"))
	})

	It("creates a counter at its initial value on first Incr", func() {
		v, err := cl.Incr([]byte("counter"), 3, 42, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint64(42)))

		v, err = cl.Incr([]byte("counter"), 3, 42, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint64(45)))
	})
})

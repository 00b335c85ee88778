package conn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sabouaram/memkit/conn"
	mcerr "github.com/sabouaram/memkit/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConn(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Conn Suite")
}

func startEchoServer() (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer GinkgoRecover()
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(c)
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

var _ = Describe("Connect", func() {
	It("transitions INIT -> IDLE on a successful dial", func() {
		addr, stop := startEchoServer()
		defer stop()

		c := conn.New(addr, false, time.Second, 30*time.Second, 0)
		Expect(c.State()).To(Equal(conn.StateInit))

		Expect(c.Connect(context.Background())).To(Succeed())
		defer c.Close()

		Expect(c.IsConnected()).To(BeTrue())
		Expect(c.State()).To(Equal(conn.StateIdle))
	})

	It("transitions to FAILED and schedules a retry on dial failure", func() {
		// nothing listening on this address.
		c := conn.New("127.0.0.1:1", false, 200*time.Millisecond, time.Minute, 0)

		Expect(c.Connect(context.Background())).ToNot(Succeed())
		Expect(c.State()).To(Equal(conn.StateFailed))
		Expect(c.ReadyToRetry(time.Now())).To(BeFalse(), "retry_timeout has not elapsed yet")
		Expect(c.ReadyToRetry(time.Now().Add(2 * time.Minute))).To(BeTrue())
	})

	It("needs no connect phase for UDP", func() {
		ln, err := net.ListenPacket("udp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		c := conn.New(ln.LocalAddr().String(), true, time.Second, 30*time.Second, 65536)
		Expect(c.Connect(context.Background())).To(Succeed())
		defer c.Close()

		Expect(c.IsConnected()).To(BeTrue())
	})
})

var _ = Describe("Flush and Fill", func() {
	It("round-trips bytes through a real socket", func() {
		addr, stop := startEchoServer()
		defer stop()

		c := conn.New(addr, false, time.Second, 30*time.Second, 0)
		Expect(c.Connect(context.Background())).To(Succeed())
		defer c.Close()

		_, err := c.WriteBuf().Write([]byte("ping"))
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Flush()).To(Succeed())
		Expect(c.State()).To(Equal(conn.StateIdle))

		Eventually(func() int {
			_, _ = c.Fill()
			return c.ReadBuf().Len()
		}, time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 4))

		Expect(string(c.ReadBuf().Bytes())).To(Equal("ping"))
	})

	It("reports Timeout without failing the connection when nothing is ready yet", func() {
		addr, stop := startEchoServer()
		defer stop()

		c := conn.New(addr, false, time.Second, 30*time.Second, 0)
		Expect(c.Connect(context.Background())).To(Succeed())
		defer c.Close()

		Expect(c.SetReadDeadline(time.Now().Add(time.Millisecond))).To(Succeed())
		_, err := c.Fill()
		Expect(mcerr.IsCode(err, mcerr.Timeout)).To(BeTrue())
		Expect(c.State()).To(Equal(conn.StateIdle))
		Expect(c.IsConnected()).To(BeTrue(), "a readiness-poll timeout must not fail the connection")
	})
})

var _ = Describe("Close", func() {
	It("returns the connection to INIT", func() {
		addr, stop := startEchoServer()
		defer stop()

		c := conn.New(addr, false, time.Second, 30*time.Second, 0)
		Expect(c.Connect(context.Background())).To(Succeed())
		Expect(c.Close()).To(Succeed())
		Expect(c.State()).To(Equal(conn.StateInit))
	})
})

package handle_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/flux-framework/flux-go/handle"
	"github.com/flux-framework/flux-go/internal/fconfig"
	"github.com/flux-framework/flux-go/internal/ferrors"
	"github.com/flux-framework/flux-go/message"
	"github.com/flux-framework/flux-go/transport/inproc"
)

func newPair() (client, server *handle.Handle) {
	a, b := inproc.Pair(8)
	client = handle.New(a, fconfig.New())
	server = handle.New(b, fconfig.New())
	client.Start()
	server.Start()
	go client.Reactor().Run()
	go server.Reactor().Run()
	return client, server
}

var _ = Describe("Handle", func() {
	var client, server *handle.Handle

	BeforeEach(func() {
		client, server = newPair()
	})

	AfterEach(func() {
		client.Close()
		server.Close()
	})

	It("round-trips a request/response RPC by matchtag", func() {
		server.On(message.Match{TypeMask: message.TypeRequest, Topic: "ping"},
			func(h *handle.Handle, req *message.Message) error {
				resp, err := message.New(message.TypeResponse)
				Expect(err).NotTo(HaveOccurred())
				tag, _ := req.Matchtag()
				Expect(resp.SetMatchtag(tag)).To(Succeed())
				resp.SetPayload([]byte("pong"))
				return h.Send(resp)
			})

		req, err := message.New(message.TypeRequest)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.SetTopic("ping")).To(Succeed())

		replyCh, err := client.SendRequest(req)
		Expect(err).NotTo(HaveOccurred())

		var resp *message.Message
		Eventually(replyCh, time.Second).Should(Receive(&resp))
		payload, ok := resp.Payload()
		Expect(ok).To(BeTrue())
		Expect(string(payload)).To(Equal("pong"))
	})

	It("auto-responds ENOSYS when no dispatch entry matches a request", func() {
		req, err := message.New(message.TypeRequest)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.SetTopic("no.such.method")).To(Succeed())

		replyCh, err := client.SendRequest(req)
		Expect(err).NotTo(HaveOccurred())

		var resp *message.Message
		Eventually(replyCh, time.Second).Should(Receive(&resp))
		errnum, err := resp.Errnum()
		Expect(err).NotTo(HaveOccurred())
		Expect(errnum).To(Equal(ferrors.ENOSYS))
	})

	It("dispatches to the most recently registered matching entry", func() {
		var fired []string
		server.On(message.Match{TypeMask: message.TypeRequest, Topic: "dup"},
			func(h *handle.Handle, req *message.Message) error {
				fired = append(fired, "first")
				resp, _ := message.New(message.TypeResponse)
				tag, _ := req.Matchtag()
				resp.SetMatchtag(tag)
				return h.Send(resp)
			})
		server.On(message.Match{TypeMask: message.TypeRequest, Topic: "dup"},
			func(h *handle.Handle, req *message.Message) error {
				fired = append(fired, "second")
				resp, _ := message.New(message.TypeResponse)
				tag, _ := req.Matchtag()
				resp.SetMatchtag(tag)
				return h.Send(resp)
			})

		req, _ := message.New(message.TypeRequest)
		req.SetTopic("dup")
		replyCh, err := client.SendRequest(req)
		Expect(err).NotTo(HaveOccurred())
		Eventually(replyCh, time.Second).Should(Receive())
		Expect(fired).To(Equal([]string{"second"}))
	})

	It("stores and destroys aux data on Close", func() {
		destroyed := false
		client.AuxSet("k", 42, func(v any) { destroyed = true })
		v, ok := client.AuxGet("k")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(42))

		Expect(client.Close()).To(Succeed())
		Expect(destroyed).To(BeTrue())
	})

	It("publishes events with increasing sequence numbers to a subscriber", func() {
		received := make(chan *message.Message, 4)
		client.Subscribe("sys", func(h *handle.Handle, m *message.Message) {
			received <- m
		})

		Expect(server.Publish("sys.heartbeat", nil)).To(Succeed())
		Expect(server.Publish("sys.heartbeat", nil)).To(Succeed())

		var first, second *message.Message
		Eventually(received, time.Second).Should(Receive(&first))
		Eventually(received, time.Second).Should(Receive(&second))

		s1, _ := first.Sequence()
		s2, _ := second.Sequence()
		Expect(s2).To(BeNumerically(">", s1))
	})

	It("gives a child handle its own reactor distinct from its parent's", func() {
		child := client.Child()
		Expect(child.Reactor()).NotTo(BeIdenticalTo(client.Reactor()))
	})
})

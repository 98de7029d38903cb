package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/ai/ollama"
	"github.com/papercomputeco/cadence/pkg/llm"
)

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		received map[string]any
		handler  http.HandlerFunc
		req      *llm.ChatRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		received = nil
		req = &llm.ChatRequest{
			System:   "You are a Mandarin tutor.",
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "quiz me")},
		}
	})

	JustBeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			handler(w, r)
		}))
		DeferCleanup(server.Close)
	})

	Context("with a complete reply", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"model":"llama3.2","message":{"role":"assistant","content":"Say ni hao."},"done":true}`)
			}
		})

		It("returns the assistant message", func() {
			c := ollama.New(ollama.Config{BaseURL: server.URL})
			text, err := c.Generate(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Say ni hao."))

			Expect(received["model"]).To(Equal(ollama.DefaultModel))
			Expect(received["stream"]).To(BeFalse())
			msgs := received["messages"].([]any)
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].(map[string]any)["role"]).To(Equal("system"))
		})

		It("maps generation parameters to options", func() {
			temp := 0.2
			req.Temperature = &temp
			c := ollama.New(ollama.Config{BaseURL: server.URL, Model: "qwen2.5"})
			_, err := c.Generate(ctx, req)
			Expect(err).NotTo(HaveOccurred())

			Expect(received["model"]).To(Equal("qwen2.5"))
			Expect(received["options"]).To(HaveKeyWithValue("temperature", 0.2))
		})
	})

	Context("with a streamed reply", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/x-ndjson")
				_, _ = io.WriteString(w, `{"model":"llama3.2","message":{"role":"assistant","content":"ni"},"done":false}`+"\n")
				_, _ = io.WriteString(w, `{"model":"llama3.2","message":{"role":"assistant","content":" hao"},"done":false}`+"\n")
				_, _ = io.WriteString(w, `{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`+"\n")
			}
		})

		It("yields each line and then io.EOF", func() {
			c := ollama.New(ollama.Config{BaseURL: server.URL})
			s, err := c.GenerateStream(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			chunk, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Text).To(Equal("ni"))

			chunk, err = s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Text).To(Equal(" hao"))

			chunk, err = s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Done).To(BeTrue())
			Expect(chunk.StopReason).To(Equal("stop"))

			_, err = s.Next()
			Expect(err).To(MatchError(io.EOF))
			Expect(received["stream"]).To(BeTrue())
		})

		It("collects into the full reply", func() {
			c := ollama.New(ollama.Config{BaseURL: server.URL})
			s, err := c.GenerateStream(ctx, req)
			Expect(err).NotTo(HaveOccurred())

			text, err := ai.Collect(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("ni hao"))
		})
	})

	Context("when ollama fails", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
			}
		})

		It("reports the capability as unavailable", func() {
			c := ollama.New(ollama.Config{BaseURL: server.URL})
			_, err := c.Generate(ctx, req)
			Expect(errors.Is(err, ai.ErrUnavailable)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("404"))

			_, err = c.GenerateStream(ctx, req)
			Expect(errors.Is(err, ai.ErrUnavailable)).To(BeTrue())
		})
	})

	It("reports an unreachable server as unavailable", func() {
		handler = func(http.ResponseWriter, *http.Request) {}
		c := ollama.New(ollama.Config{BaseURL: "http://127.0.0.1:1"})
		_, err := c.Generate(ctx, req)
		Expect(errors.Is(err, ai.ErrUnavailable)).To(BeTrue())
	})
})

package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/llm"
)

var _ = Describe("Message", func() {
	It("concatenates text blocks", func() {
		msg := llm.Message{
			Role: llm.RoleAssistant,
			Content: []llm.ContentBlock{
				{Type: "text", Text: "ni "},
				{Type: "image"},
				{Type: "text", Text: "hao"},
			},
		}
		Expect(msg.GetText()).To(Equal("ni hao"))
	})

	It("builds a single-block text message", func() {
		msg := llm.NewTextMessage(llm.RoleUser, "quiz me")
		Expect(msg.Role).To(Equal("user"))
		Expect(msg.GetText()).To(Equal("quiz me"))
	})
})

var _ = Describe("ChatRequest", func() {
	It("copies the request when toggling streaming", func() {
		req := &llm.ChatRequest{Model: "llama3.2"}
		Expect(req.Streaming()).To(BeFalse())

		streamed := req.WithStream(true)
		Expect(streamed.Streaming()).To(BeTrue())
		Expect(req.Stream).To(BeNil())
		Expect(streamed.Model).To(Equal("llama3.2"))
	})
})

package ai_test

import (
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/ai"
	"github.com/papercomputeco/cadence/pkg/llm"
)

type sliceStream struct {
	chunks []string
	err    error
	closed bool
}

func (s *sliceStream) Next() (*llm.StreamChunk, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return &llm.StreamChunk{Text: c}, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

var _ = Describe("Collect", func() {
	It("concatenates chunks and closes the stream", func() {
		s := &sliceStream{chunks: []string{"ni", " ", "hao"}}
		text, err := ai.Collect(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("ni hao"))
		Expect(s.closed).To(BeTrue())
	})

	It("returns the partial text with a mid-stream error", func() {
		s := &sliceStream{chunks: []string{"ni"}, err: ai.ErrUnavailable}
		text, err := ai.Collect(s)
		Expect(errors.Is(err, ai.ErrUnavailable)).To(BeTrue())
		Expect(text).To(Equal("ni"))
	})
})

var _ = Describe("Messages", func() {
	It("puts the system prompt first", func() {
		msgs := ai.Messages(&llm.ChatRequest{
			System:   "You are a Mandarin tutor.",
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "quiz me")},
		})
		Expect(msgs).To(Equal([]ai.Message{
			{Role: "system", Content: "You are a Mandarin tutor."},
			{Role: "user", Content: "quiz me"},
		}))
	})

	It("omits an empty system prompt", func() {
		msgs := ai.Messages(&llm.ChatRequest{
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "quiz me")},
		})
		Expect(msgs).To(HaveLen(1))
	})
})

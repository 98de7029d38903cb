package worker

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingFlusher records the users it was asked to flush. When gate is
// non-nil each flush blocks until the gate is closed.
type recordingFlusher struct {
	mu    sync.Mutex
	users []string
	gate  chan struct{}
	err   error
}

func (r *recordingFlusher) Flush(_ context.Context, userID string) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return r.err
}

func (r *recordingFlusher) flushed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

var _ = Describe("Worker Pool", func() {
	var flusher *recordingFlusher

	BeforeEach(func() {
		flusher = &recordingFlusher{}
	})

	It("requires a flusher", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults", func() {
		wp, err := NewPool(&Config{Flusher: flusher})
		Expect(err).NotTo(HaveOccurred())
		defer wp.Close()

		Expect(wp.config.NumWorkers).To(Equal(defaultNumWorkers))
		Expect(wp.config.QueueSize).To(Equal(defaultJobQueueSize))
		Expect(wp.config.JobTimeout).To(Equal(defaultJobTimeout))
	})

	Describe("Enqueue", func() {
		It("flushes every enqueued user before Close returns", func() {
			wp, err := NewPool(&Config{Flusher: flusher, NumWorkers: 2})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue(Job{UserID: "mei", Reason: "tick"})).To(BeTrue())
			Expect(wp.Enqueue(Job{UserID: "li", Reason: "tick"})).To(BeTrue())
			wp.Close()

			Expect(flusher.flushed()).To(ConsistOf("mei", "li"))
		})

		It("coalesces jobs for a user that is already queued", func() {
			flusher.gate = make(chan struct{})
			wp, err := NewPool(&Config{Flusher: flusher, NumWorkers: 1, QueueSize: 4})
			Expect(err).NotTo(HaveOccurred())

			// The first job occupies the single worker, the rest queue behind it.
			Expect(wp.Enqueue(Job{UserID: "busy"})).To(BeTrue())
			Eventually(func() int {
				wp.mu.Lock()
				defer wp.mu.Unlock()
				return len(wp.queued)
			}).Should(BeZero())

			Expect(wp.Enqueue(Job{UserID: "mei"})).To(BeTrue())
			Expect(wp.Enqueue(Job{UserID: "mei"})).To(BeTrue())
			Expect(wp.queue).To(HaveLen(1))

			close(flusher.gate)
			wp.Close()
			Expect(flusher.flushed()).To(Equal([]string{"busy", "mei"}))
		})

		It("drops jobs when the queue is full", func() {
			flusher.gate = make(chan struct{})
			wp, err := NewPool(&Config{Flusher: flusher, NumWorkers: 1, QueueSize: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue(Job{UserID: "a"})).To(BeTrue())
			Eventually(func() int { return len(wp.queue) }).Should(BeZero())

			Expect(wp.Enqueue(Job{UserID: "b"})).To(BeTrue())
			Expect(wp.Enqueue(Job{UserID: "c"})).To(BeFalse())

			close(flusher.gate)
			wp.Close()
		})

		It("refuses jobs after Close", func() {
			wp, err := NewPool(&Config{Flusher: flusher})
			Expect(err).NotTo(HaveOccurred())
			wp.Close()
			wp.Close()

			Expect(wp.Enqueue(Job{UserID: "mei"})).To(BeFalse())
		})

		It("keeps working after a failed flush", func() {
			flusher.err = errors.New("store down")
			wp, err := NewPool(&Config{Flusher: FlushFunc(flusher.Flush), NumWorkers: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue(Job{UserID: "mei"})).To(BeTrue())
			Expect(wp.Enqueue(Job{UserID: "li"})).To(BeTrue())
			wp.Close()

			Expect(flusher.flushed()).To(HaveLen(2))
		})
	})
})

// Package leasetest holds the behavioral specs every lease.Manager must pass.
package leasetest

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cadence/pkg/lease"
)

// ManagerBehaviors registers the shared lease specs. newManager is called
// before every spec.
func ManagerBehaviors(newManager func() lease.Manager) {
	var (
		ctx     context.Context
		manager lease.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager = newManager()
	})

	It("grants a lease to the first caller only", func() {
		token, err := manager.Acquire(ctx, "mei")
		Expect(err).NotTo(HaveOccurred())
		Expect(token).NotTo(BeEmpty())

		_, err = manager.Acquire(ctx, "mei")
		Expect(err).To(MatchError(lease.ErrHeld))
	})

	It("leases different users independently", func() {
		_, err := manager.Acquire(ctx, "mei")
		Expect(err).NotTo(HaveOccurred())
		_, err = manager.Acquire(ctx, "li")
		Expect(err).NotTo(HaveOccurred())
	})

	It("can be acquired again after release", func() {
		token, err := manager.Acquire(ctx, "mei")
		Expect(err).NotTo(HaveOccurred())
		Expect(manager.Release(ctx, "mei", token)).To(Succeed())

		_, err = manager.Acquire(ctx, "mei")
		Expect(err).NotTo(HaveOccurred())
	})

	It("renews only with the owning token", func() {
		token, err := manager.Acquire(ctx, "mei")
		Expect(err).NotTo(HaveOccurred())

		Expect(manager.Renew(ctx, "mei", token)).To(Succeed())
		Expect(manager.Renew(ctx, "mei", "someone-else")).To(MatchError(lease.ErrLost))
		Expect(manager.Release(ctx, "mei", "someone-else")).To(MatchError(lease.ErrLost))
	})

	It("admits exactly one of many concurrent acquirers", func() {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := manager.Acquire(ctx, "mei")
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				Expect(err).To(MatchError(lease.ErrHeld))
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
	})
}

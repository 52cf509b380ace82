package shadow

import (
	"slices"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Locked", func() {
	var l *Locked

	BeforeEach(func() {
		l = MakeBuilder().BuildLocked()
	})

	It("should forward to the wrapped manager", func() {
		l.Record(0x1000, 3)
		Expect(l.RecordBytes(0x2000, []byte{1, 2})).To(Succeed())

		Expect(l.IsMarked(0x1000)).To(BeTrue())
		Expect(l.NumPages()).To(Equal(2))

		value, ok := l.Value(0x2001)
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal(byte(2)))

		found, err := l.IsMarkedInRange(0x1001, 0x2000)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())

		Expect(slices.Collect(l.MarkedAddresses())).
			To(Equal([]uint64{0x1000, 0x2000, 0x2001}))
	})

	It("should keep one page per base under concurrent writers", func() {
		const writers = 32

		var wg sync.WaitGroup
		wg.Add(writers)
		for i := 0; i < writers; i++ {
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()

				for j := 0; j < 64; j++ {
					addr := uint64(j)*PageSize + uint64(i)
					l.Record(addr, byte(i))
					Expect(l.IsMarked(addr)).To(BeTrue())
				}
			}(i)
		}
		wg.Wait()

		Expect(l.NumPages()).To(Equal(64))
		l.View(func(m *Manager) {
			for _, base := range m.PageBases() {
				page, _ := m.Page(base)
				Expect(page.NumMarked()).To(Equal(uint(writers)))
			}
		})
	})

	It("should let readers run next to a writer", func() {
		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)

			for i := uint64(0); i < 1000; i++ {
				l.Record(i*17, 1)
			}
		}()

		for i := 0; i < 100; i++ {
			_, err := l.IsMarkedInRange(0, 17*1000)
			Expect(err).NotTo(HaveOccurred())
		}

		<-done
		Expect(slices.Collect(l.MarkedAddresses())).To(HaveLen(1000))
	})
})

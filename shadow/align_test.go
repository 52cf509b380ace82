package shadow

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Alignment", func() {
	DescribeTable("aligning down to 8",
		func(v, want uint64) {
			Expect(AlignDown(v, 8)).To(Equal(want))
		},
		Entry("0", uint64(0), uint64(0)),
		Entry("1", uint64(1), uint64(0)),
		Entry("2", uint64(2), uint64(0)),
		Entry("3", uint64(3), uint64(0)),
		Entry("4", uint64(4), uint64(0)),
		Entry("5", uint64(5), uint64(0)),
		Entry("6", uint64(6), uint64(0)),
		Entry("7", uint64(7), uint64(0)),
		Entry("8", uint64(8), uint64(8)),
		Entry("9", uint64(9), uint64(8)),
	)

	It("should match v - v%8 when aligning down", func() {
		for v := uint64(0); v < 64; v++ {
			Expect(AlignDown(v, 8)).To(Equal(v - v%8))
		}
	})

	It("should round up to the next multiple of 8", func() {
		for v := uint64(0); v < 64; v++ {
			want := v
			if v%8 != 0 {
				want = v + (8 - v%8)
			}

			Expect(AlignUp(v, 8)).To(Equal(want))
		}
	})

	It("should find the page base", func() {
		Expect(PageBase(0)).To(Equal(uint64(0)))
		Expect(PageBase(0xfff)).To(Equal(uint64(0)))
		Expect(PageBase(0x1000)).To(Equal(uint64(0x1000)))
		Expect(PageBase(0x2123)).To(Equal(uint64(0x2000)))
		Expect(PageBase(^uint64(0))).To(Equal(^uint64(0) - PageSize + 1))
	})
})

package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/shadowmem/shadow"
)

var _ = Describe("Monitor", func() {
	var (
		tracker *shadow.Locked
		m       *Monitor
		router  http.Handler
	)

	get := func(url string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		tracker = shadow.MakeBuilder().BuildLocked()
		tracker.Record(0x2000, 0xaa)
		tracker.Record(0x2005, 0x00)
		tracker.Record(0x9123, 0xbd)

		m = NewMonitor(tracker)
		router = m.Router()
	})

	It("should ignore privileged port numbers", func() {
		m.WithPortNumber(80)

		Expect(m.portNumber).To(Equal(0))
	})

	It("should keep a valid port number", func() {
		m.WithPortNumber(32776)

		Expect(m.portNumber).To(Equal(32776))
	})

	It("should list pages in ascending order", func() {
		rec := get("/api/pages")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var pages []pageSummary
		Expect(json.Unmarshal(rec.Body.Bytes(), &pages)).To(Succeed())
		Expect(pages).To(Equal([]pageSummary{
			{Base: "0x2000", Marked: 2},
			{Base: "0x9000", Marked: 1},
		}))
	})

	It("should show page details", func() {
		rec := get("/api/page/0x2000")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var rsp pageDetails
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Base).To(Equal("0x2000"))
		Expect(rsp.Marked).To(Equal(uint(2)))
		Expect(rsp.Offsets).To(Equal([]uint64{0, 5}))
		Expect(rsp.Data).To(HaveLen(2 * shadow.PageSize))
		Expect(rsp.Data).To(HavePrefix("aa00000000"))
	})

	It("should reject an unaligned page base", func() {
		rec := get("/api/page/0x2001")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should report a missing page", func() {
		rec := get("/api/page/0x5000")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should reject a malformed address", func() {
		rec := get("/api/marked/xyz")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should report a marked address with its value", func() {
		rec := get("/api/marked/0x2005")

		var rsp markedRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Marked).To(BeTrue())
		Expect(rsp.Value).NotTo(BeNil())
		Expect(*rsp.Value).To(Equal(uint8(0)))
	})

	It("should report an unmarked address without a value", func() {
		rec := get("/api/marked/0x2004")

		Expect(rec.Body.String()).NotTo(ContainSubstring("value"))

		var rsp markedRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Marked).To(BeFalse())
	})

	It("should answer range queries", func() {
		rec := get("/api/range?begin=0x2001&end=0x2004")

		var rsp rangeRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Marked).To(BeFalse())

		rec = get("/api/range?begin=0x3000&end=0x9200")
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Marked).To(BeTrue())
		Expect(rsp.Begin).To(Equal("0x3000"))
		Expect(rsp.End).To(Equal("0x9200"))
	})

	It("should reject an inverted range", func() {
		rec := get("/api/range?begin=0x3000&end=0x2000")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("invalid address range"))
	})

	It("should reject a range without bounds", func() {
		rec := get("/api/range?begin=0x3000")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should serve the web page", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(strings.HasPrefix(rec.Body.String(), "<!DOCTYPE html>")).
			To(BeTrue())
	})
})

package tracing

import (
	"fmt"

	"github.com/rs/xid"
	"github.com/sarchlab/shadowmem/datarecording"
	"github.com/sarchlab/shadowmem/hooking"
	"github.com/sarchlab/shadowmem/shadow"
	"github.com/tebeka/atexit"
)

// Table names used by the PatchRecorder.
const (
	PatchTableName = "shadow_patch"
	PageTableName  = "shadow_page"
)

// PatchEntry is one row of the patch table. SQLite integers are signed, so
// addresses are stored as the int64 with the same bits.
type PatchEntry struct {
	Session string
	Seq     int64
	Address int64
	Value   uint8
}

// PageEntry is one row of the page table.
type PageEntry struct {
	Session string
	Seq     int64
	Base    int64
}

// A PatchRecorder is a hook that writes every recorded byte and every page
// allocation of a Manager into a DataRecorder. Rows of one recorder share a
// session ID so that several runs can go into the same database. The rows
// are an event trace; nothing reads them back into a Manager.
type PatchRecorder struct {
	recorder datarecording.DataRecorder
	session  string
	seq      int64
}

// NewPatchRecorder creates the patch and page tables in recorder and returns
// a hook that fills them. The recorder is flushed when the program exits
// through atexit.
func NewPatchRecorder(recorder datarecording.DataRecorder) *PatchRecorder {
	recorder.CreateTable(PatchTableName, PatchEntry{})
	recorder.CreateTable(PageTableName, PageEntry{})

	r := &PatchRecorder{
		recorder: recorder,
		session:  xid.New().String(),
	}

	atexit.Register(func() {
		r.Flush()
	})

	return r
}

// Session returns the ID stamped on every row written by this recorder.
func (r *PatchRecorder) Session() string {
	return r.session
}

// Func records the hook site.
func (r *PatchRecorder) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case shadow.HookPosPageAlloc:
		r.RecordPageAlloc(ctx.Item.(shadow.PageAlloc))
	case shadow.HookPosRecord:
		r.RecordPatch(ctx.Item.(shadow.Patch))
	}
}

// RecordPatch adds a row to the patch table.
func (r *PatchRecorder) RecordPatch(p shadow.Patch) {
	r.seq++
	r.recorder.InsertData(PatchTableName, PatchEntry{
		Session: r.session,
		Seq:     r.seq,
		Address: int64(p.Address),
		Value:   p.Value,
	})
}

// RecordPageAlloc adds a row to the page table.
func (r *PatchRecorder) RecordPageAlloc(a shadow.PageAlloc) {
	r.seq++
	r.recorder.InsertData(PageTableName, PageEntry{
		Session: r.session,
		Seq:     r.seq,
		Base:    int64(a.Base),
	})
}

// Flush writes the buffered rows to the database.
func (r *PatchRecorder) Flush() {
	r.recorder.Flush()
}

func hexAddr(addr uint64) string {
	return fmt.Sprintf("%#x", addr)
}

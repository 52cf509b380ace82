// Package monitoring turns a shadow Manager into a web server that can be
// inspected while the hosting program runs.
package monitoring

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/shadowmem/monitoring/web"
	"github.com/sarchlab/shadowmem/shadow"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor serves the state of a shadow Manager over HTTP.
type Monitor struct {
	tracker     *shadow.Locked
	portNumber  int
	openBrowser bool

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a Monitor for the given tracker.
func NewMonitor(tracker *shadow.Locked) *Monitor {
	return &Monitor{tracker: tracker}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor page in a browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// Router returns the routes served by the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pages", m.listPages).Methods(http.MethodGet)
	r.HandleFunc("/api/page/{base}", m.pageDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/marked/{addr}", m.marked).Methods(http.MethodGet)
	r.HandleFunc("/api/range", m.rangeQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/manager", m.serializeManager).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts serving in the background and returns the URL of the
// monitor.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 0 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring shadow memory with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		err = browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}

	return url
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

type pageSummary struct {
	Base   string `json:"base"`
	Marked uint   `json:"marked"`
}

type pageDetails struct {
	pageSummary
	Offsets []uint64 `json:"offsets"`
	Data    string   `json:"data"`
}

type markedRsp struct {
	Address string `json:"address"`
	Marked  bool   `json:"marked"`
	Value   *uint8 `json:"value,omitempty"`
}

type rangeRsp struct {
	Begin  string `json:"begin"`
	End    string `json:"end"`
	Marked bool   `json:"marked"`
}

func (m *Monitor) listPages(w http.ResponseWriter, _ *http.Request) {
	pages := []pageSummary{}

	m.tracker.View(func(mgr *shadow.Manager) {
		for _, base := range mgr.PageBases() {
			page, _ := mgr.Page(base)
			pages = append(pages, pageSummary{
				Base:   hexAddr(base),
				Marked: page.NumMarked(),
			})
		}
	})

	writeJSON(w, pages)
}

func (m *Monitor) pageDetails(w http.ResponseWriter, r *http.Request) {
	base, ok := parseAddrOr400(w, mux.Vars(r)["base"])
	if !ok {
		return
	}

	if base != shadow.PageBase(base) {
		httpError(w, http.StatusBadRequest,
			"%s is not a page base", hexAddr(base))
		return
	}

	var (
		rsp   pageDetails
		found bool
	)

	m.tracker.View(func(mgr *shadow.Manager) {
		var page *shadow.Page

		page, found = mgr.Page(base)
		if !found {
			return
		}

		data := page.Data()
		rsp = pageDetails{
			pageSummary: pageSummary{
				Base:   hexAddr(base),
				Marked: page.NumMarked(),
			},
			Offsets: []uint64{},
			Data:    hex.EncodeToString(data[:]),
		}

		for offset := range page.Offsets() {
			rsp.Offsets = append(rsp.Offsets, offset)
		}
	})

	if !found {
		httpError(w, http.StatusNotFound, "Page not found")
		return
	}

	writeJSON(w, rsp)
}

func (m *Monitor) marked(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddrOr400(w, mux.Vars(r)["addr"])
	if !ok {
		return
	}

	rsp := markedRsp{Address: hexAddr(addr)}

	value, marked := m.tracker.Value(addr)
	if marked {
		rsp.Marked = true
		rsp.Value = &value
	}

	writeJSON(w, rsp)
}

func (m *Monitor) rangeQuery(w http.ResponseWriter, r *http.Request) {
	begin, ok := parseAddrOr400(w, r.URL.Query().Get("begin"))
	if !ok {
		return
	}

	end, ok := parseAddrOr400(w, r.URL.Query().Get("end"))
	if !ok {
		return
	}

	marked, err := m.tracker.IsMarkedInRange(begin, end)
	if errors.Is(err, shadow.ErrInvalidRange) {
		httpError(w, http.StatusBadRequest, "%s", err)
		return
	}
	dieOnErr(err)

	writeJSON(w, rangeRsp{
		Begin:  hexAddr(begin),
		End:    hexAddr(end),
		Marked: marked,
	})
}

func (m *Monitor) serializeManager(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	m.tracker.View(func(mgr *shadow.Manager) {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(mgr)
		serializer.SetMaxDepth(1)
		err := serializer.Serialize(buf)
		dieOnErr(err)
	})

	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write(buf.Bytes())
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		httpError(w, http.StatusConflict, "%s", err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func parseAddrOr400(w http.ResponseWriter, s string) (uint64, bool) {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid address %q", s)
		return 0, false
	}

	return addr, true
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	w.WriteHeader(status)
	_, err := fmt.Fprintf(w, format, args...)
	dieOnErr(err)
}

func hexAddr(addr uint64) string {
	return fmt.Sprintf("%#x", addr)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}

// Package monitoring exposes an optional HTTP dashboard over a running
// simulation: live counters, the final cache/stream-buffer snapshot, process
// resource usage, and CPU profile capture. It is opt-in and never required
// to reproduce a run's measurements.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	// Enable profiling.
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/internal/streambuf"
	"github.com/sarchlab/cachesim/internal/tagging"
)

// Snapshot is the goseth-serialized payload for /api/state: everything a
// dashboard needs to render the current run.
type Snapshot struct {
	L1             cache.Counters
	L1Sets         [][]tagging.Way
	L2             cache.Counters
	L2Sets         [][]tagging.Way
	HasL2          bool
	StreamBuffers  []streambuf.Buffer
	LinesProcessed uint64
}

// StateProvider supplies the current Snapshot on demand. cmd/cachesim wires
// this to the in-flight *cache.Cache levels and the trace line counter.
type StateProvider interface {
	Snapshot() Snapshot
}

// Monitor runs the dashboard's HTTP server over a StateProvider.
type Monitor struct {
	state      StateProvider
	portNumber int

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// New creates a Monitor over the given state provider.
func New(state StateProvider) *Monitor {
	return &Monitor{state: state}
}

// WithPortNumber sets the port the dashboard listens on; ports below 1000
// are rejected in favor of a random port, matching the teacher's guard
// against binding privileged ports.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"port number %d is not allowed for the monitoring server, "+
				"using a random port instead\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// CreateProgressBar creates and registers a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar once its run has finished.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// StartServer starts the dashboard as a background HTTP server and returns
// the port it bound, so a caller wanting to open a browser knows where to
// point it even when a random port was chosen.
func (m *Monitor) StartServer() int {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/state", m.listState)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber >= 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	boundPort := listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(
		os.Stderr,
		"monitoring this run at http://localhost:%d\n",
		boundPort)

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()

	return boundPort
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	snap := m.state.Snapshot()
	fmt.Fprintf(w, "{\"lines_processed\":%d}", snap.LinesProcessed)
}

func (m *Monitor) listState(w http.ResponseWriter, _ *http.Request) {
	snap := m.state.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snap)
	serializer.SetMaxDepth(3)

	err := serializer.Serialize(w)
	dieOnErr(err)
}

type fieldReq struct {
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	dieOnErr(err)

	snap := m.state.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snap)
	serializer.SetMaxDepth(3)

	if req.FieldName != "" {
		err = serializer.SetEntryPoint([]string{req.FieldName})
		dieOnErr(err)
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]*ProgressBar, len(m.progressBars))
	copy(bars, m.progressBars)
	m.progressBarsLock.Unlock()

	data, err := json.Marshal(bars)
	dieOnErr(err)

	_, err = w.Write(data)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memorySize, err := proc.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	data, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(data)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	data, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}

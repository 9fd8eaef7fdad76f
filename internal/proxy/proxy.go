// Package proxy implements the cross-rank cell/particle exchange
// protocol: a Transport trait behind which any real MPI binding could
// sit, a LocalTransport loopback for single-node runs, and the
// per-peer Proxy buffer sets that drive send/recv tasks.
package proxy

import (
	"sync"

	"github.com/fjeanquartier/swiftsim/internal/part"
)

// Transport isolates every message-passing operation behind a trait,
// so the scheduler and engine never call into a networking library
// directly. A real binding (e.g. cgo over an MPI install) implements
// this against actual ranks; LocalTransport implements it as an
// in-process loopback for single-node runs and tests.
type Transport interface {
	// Rank returns this process's rank and the total rank count.
	Rank() (rank, size int)

	// Isend posts a non-blocking send of payload to peer, tagged tag.
	// It returns a handle that Test polls for completion.
	Isend(peer int, tag int, payload []byte) Request

	// Irecv posts a non-blocking receive of up to len(buf) bytes from
	// peer, tagged tag. The handle's Test reports how many bytes
	// landed in buf once complete.
	Irecv(peer int, tag int, buf []byte) Request

	// Allreduce sums local elementwise into a result visible to every
	// rank (used for the repartition migration matrix and global
	// statistics reductions).
	Allreduce(local []float64) []float64

	// Barrier blocks until every rank has called Barrier.
	Barrier()
}

// Request is a handle to a posted, possibly still in-flight,
// non-blocking operation.
type Request interface {
	// Test reports whether the operation has completed. For a
	// receive, n is how many bytes were actually written to the
	// caller's buffer.
	Test() (done bool, n int)
}

// LocalTransport is the single-node Transport: every Isend stores its
// payload under its tag, and a later Irecv for that tag claims it (a
// receive posted before the matching send reports not done). Since
// there is exactly one rank, the peer argument is ignored. It exists
// so the proxy/engine code has a real collaborator to run against
// without requiring an MPI install.
type LocalTransport struct {
	mu      sync.Mutex
	pending map[int][]byte // tag -> payload waiting to be claimed by Irecv
}

// NewLocalTransport returns a ready-to-use single-node transport.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{pending: make(map[int][]byte)}
}

func (l *LocalTransport) Rank() (rank, size int) { return 0, 1 }

func (l *LocalTransport) Isend(peer int, tag int, payload []byte) Request {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	l.mu.Lock()
	l.pending[tag] = cp
	l.mu.Unlock()
	return localRequest{done: true, n: len(cp)}
}

func (l *LocalTransport) Irecv(peer int, tag int, buf []byte) Request {
	l.mu.Lock()
	payload, ok := l.pending[tag]
	if ok {
		delete(l.pending, tag)
	}
	l.mu.Unlock()
	if !ok {
		return localRequest{done: false}
	}
	n := copy(buf, payload)
	return localRequest{done: true, n: n}
}

func (l *LocalTransport) Allreduce(local []float64) []float64 {
	out := make([]float64, len(local))
	copy(out, local)
	return out
}

func (l *LocalTransport) Barrier() {}

type localRequest struct {
	done bool
	n    int
}

func (r localRequest) Test() (bool, int) { return r.done, r.n }

// CellMeta is the metadata exchanged for one foreign cell before its
// particle payload: just enough for the receiving rank to size its
// buffers and rebuild a placeholder cell.
type CellMeta struct {
	Loc   [3]float64
	Width [3]float64
	Count int
	GCount int
	SCount int
}

// Proxy is the per-peer buffer set: outbound metadata and particle
// payloads, inbound counterparts, and the in-flight requests for
// each. One Proxy exists per remote rank this rank shares a boundary
// cell with.
type Proxy struct {
	Peer int

	OutMeta []CellMeta
	OutData part.Store

	InMeta []CellMeta
	InData part.Store

	outReq Request
	inReq  Request
}

// SendCounts posts the count handshake (the first of the two-step
// exchange described for cell exchange): how many cells/particles are
// about to follow.
func (p *Proxy) SendCounts(t Transport, tag int) {
	buf := encodeCounts(len(p.OutMeta), len(p.OutData.Parts), len(p.OutData.GParts), len(p.OutData.SParts))
	p.outReq = t.Isend(p.Peer, tag, buf)
}

// RecvCounts posts the matching receive for SendCounts and returns the
// decoded counts once Test reports completion; callers poll until
// ready.
func (p *Proxy) RecvCounts(t Transport, tag int) (ready bool, nCells, nParts, nGParts, nSParts int) {
	buf := make([]byte, countsSize)
	req := t.Irecv(p.Peer, tag, buf)
	p.inReq = req
	done, n := req.Test()
	if !done || n != countsSize {
		return false, 0, 0, 0, 0
	}
	nCells, nParts, nGParts, nSParts = decodeCounts(buf)
	return true, nCells, nParts, nGParts, nSParts
}

const countsSize = 4 * 8 // four little-endian uint64 counts

func encodeCounts(cells, parts, gparts, sparts int) []byte {
	buf := make([]byte, countsSize)
	putU64(buf[0:8], uint64(cells))
	putU64(buf[8:16], uint64(parts))
	putU64(buf[16:24], uint64(gparts))
	putU64(buf[24:32], uint64(sparts))
	return buf
}

func decodeCounts(buf []byte) (cells, parts, gparts, sparts int) {
	return int(getU64(buf[0:8])), int(getU64(buf[8:16])), int(getU64(buf[16:24])), int(getU64(buf[24:32]))
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

// EncodePartnerOffset converts an in-process gravity partner index
// (as stored in part.GravParticle.IDOrNegOffset) into the value that
// should travel in a transit payload: unchanged, since the negative-
// offset convention already identifies "no partner" vs "partner at
// local index k" without needing the receiving rank's own array
// layout — only DecodePartnerOffset (run after the corresponding gas
// particle's new index is known) needs to rewrite it.
func EncodePartnerOffset(idOrNegOffset int64) int64 { return idOrNegOffset }

// DecodePartnerOffset rewrites a received gravity particle's partner
// back-link from "index into the sender's part array" to "index into
// the receiver's part array", given the mapping the receiver assigned
// while appending the incoming gas particles.
func DecodePartnerOffset(idOrNegOffset int64, remap func(senderIndex int) int) int64 {
	if idOrNegOffset > 0 {
		return idOrNegOffset
	}
	return -int64(remap(int(-idOrNegOffset)))
}

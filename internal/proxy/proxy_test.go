package proxy

import (
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/part"
)

func TestLocalTransportIsSingleRank(t *testing.T) {
	tr := NewLocalTransport()
	rank, size := tr.Rank()
	if rank != 0 || size != 1 {
		t.Fatalf("Rank() = (%d, %d), want (0, 1)", rank, size)
	}
}

func TestLocalTransportIrecvBeforeIsendIsNotDone(t *testing.T) {
	tr := NewLocalTransport()
	buf := make([]byte, 8)
	req := tr.Irecv(0, 42, buf)
	done, _ := req.Test()
	if done {
		t.Fatal("Irecv with no matching Isend should not be done")
	}
}

func TestLocalTransportMatchesSendAndRecvByTag(t *testing.T) {
	tr := NewLocalTransport()
	payload := []byte{1, 2, 3, 4}
	sendReq := tr.Isend(7, 99, payload)
	if done, n := sendReq.Test(); !done || n != len(payload) {
		t.Fatalf("Isend.Test() = (%v, %d), want (true, %d)", done, n, len(payload))
	}

	buf := make([]byte, 4)
	recvReq := tr.Irecv(7, 99, buf)
	done, n := recvReq.Test()
	if !done || n != len(payload) {
		t.Fatalf("Irecv.Test() = (%v, %d), want (true, %d)", done, n, len(payload))
	}
	for i := range payload {
		if buf[i] != payload[i] {
			t.Fatalf("buf[%d] = %d, want %d", i, buf[i], payload[i])
		}
	}
}

func TestLocalTransportAllreduceCopiesLocal(t *testing.T) {
	tr := NewLocalTransport()
	local := []float64{1, 2, 3}
	out := tr.Allreduce(local)
	for i := range local {
		if out[i] != local[i] {
			t.Fatalf("Allreduce()[%d] = %f, want %f", i, out[i], local[i])
		}
	}
	out[0] = 99
	if local[0] == 99 {
		t.Fatal("Allreduce should return a copy, not alias the input")
	}
}

func TestProxySendRecvCountsRoundTrip(t *testing.T) {
	tr := NewLocalTransport()
	p := &Proxy{Peer: 0}
	p.OutMeta = []CellMeta{{Count: 3}, {Count: 5}}
	p.OutData.Parts = make([]part.Particle, 8)

	p.SendCounts(tr, 1)
	ready, nCells, nParts, nGParts, nSParts := p.RecvCounts(tr, 1)
	if !ready {
		t.Fatal("RecvCounts should complete immediately against LocalTransport")
	}
	if nCells != 2 || nParts != 8 || nGParts != 0 || nSParts != 0 {
		t.Fatalf("RecvCounts = (%d, %d, %d, %d), want (2, 8, 0, 0)", nCells, nParts, nGParts, nSParts)
	}
}

func TestEncodeDecodePartnerOffset(t *testing.T) {
	if got := EncodePartnerOffset(-5); got != -5 {
		t.Fatalf("EncodePartnerOffset(-5) = %d, want -5", got)
	}
	if got := DecodePartnerOffset(12, func(int) int { return 999 }); got != 12 {
		t.Fatalf("DecodePartnerOffset with a positive id should pass through unchanged, got %d", got)
	}
	remap := func(senderIndex int) int { return senderIndex + 100 }
	if got := DecodePartnerOffset(-3, remap); got != -103 {
		t.Fatalf("DecodePartnerOffset(-3) = %d, want -103", got)
	}
}

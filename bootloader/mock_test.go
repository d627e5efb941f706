package bootloader

import (
	"bytes"
	"testing"
)

// mockStep is one expected request and the bytes the mock hands back for
// it. A request-then-response discipline is all this protocol ever uses
// (spec.md §5), so the mock is a simple FIFO of steps rather than a full
// byte-stream scanner like malvira-go-cc2538's channel-fed ScanPort — this
// engine never pipelines, so synchronous request/response is sufficient.
type mockStep struct {
	want  []byte // nil skips the content check (still consumes a step)
	reply []byte // nil/empty simulates "no reply within the timeout"
}

type mockTransport struct {
	t         *testing.T
	steps     []mockStep
	stepIdx   int
	pending   []byte
	timeoutMS uint32
}

func newMockTransport(t *testing.T, steps []mockStep) *mockTransport {
	return &mockTransport{t: t, steps: steps, timeoutMS: 1000}
}

func (m *mockTransport) Send(data []byte) (int, error) {
	if m.stepIdx >= len(m.steps) {
		m.t.Fatalf("unexpected send of % X: no steps remaining", data)
	}
	step := m.steps[m.stepIdx]
	if step.want != nil && !bytes.Equal(data, step.want) {
		m.t.Fatalf("step %d: sent % X, want % X", m.stepIdx, data, step.want)
	}
	m.pending = append(m.pending, step.reply...)
	m.stepIdx++
	return len(data), nil
}

// Receive returns fewer than n bytes (possibly zero), never an error, when
// fewer than n bytes are pending — modelling the "timeout expiry" contract
// of spec.md §4.1 without needing a real clock.
func (m *mockTransport) Receive(n int) ([]byte, error) {
	if n >= len(m.pending) {
		out := m.pending
		m.pending = nil
		return out, nil
	}
	out := m.pending[:n]
	m.pending = m.pending[n:]
	return out, nil
}

func (m *mockTransport) Flush() error { return nil }

func (m *mockTransport) Timeout() uint32 { return m.timeoutMS }

func (m *mockTransport) SetTimeout(ms uint32) error {
	m.timeoutMS = ms
	return nil
}

func (m *mockTransport) exhausted() bool {
	return m.stepIdx == len(m.steps)
}

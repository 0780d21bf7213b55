package xchsink

import (
	"context"
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// mockConn 实现 Conn 与 io.Closer
type mockConn struct {
	prepareErr error
	execErr    error
	execs      []string
	queries    []string
	batches    []*mockBatch
	newBatch   func() *mockBatch
	closed     bool
}

func (m *mockConn) PrepareBatch(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	m.queries = append(m.queries, query)
	if m.prepareErr != nil {
		return nil, m.prepareErr
	}
	b := &mockBatch{}
	if m.newBatch != nil {
		b = m.newBatch()
	}
	m.batches = append(m.batches, b)
	return b, nil
}

func (m *mockConn) Exec(_ context.Context, query string, _ ...any) error {
	m.execs = append(m.execs, query)
	return m.execErr
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

type mockBatchColumn struct{}

func (m *mockBatchColumn) Append(_ any) error    { return nil }
func (m *mockBatchColumn) AppendRow(_ any) error { return nil }

// mockBatch 实现 driver.Batch，记录追加的行
type mockBatch struct {
	appendErr error
	failAt    int
	sendErr   error
	abortErr  error
	rows      []*row
	sent      bool
	aborted   bool
}

func (m *mockBatch) Abort() error {
	m.aborted = true
	return m.abortErr
}

func (m *mockBatch) Append(_ ...any) error { return errors.New("positional append not used") }

func (m *mockBatch) AppendStruct(v any) error {
	if m.appendErr != nil && len(m.rows) == m.failAt {
		return m.appendErr
	}
	m.rows = append(m.rows, v.(*row))
	return nil
}

func (m *mockBatch) Column(_ int) driver.BatchColumn { return &mockBatchColumn{} }
func (m *mockBatch) Flush() error                    { return nil }
func (m *mockBatch) IsSent() bool                    { return m.sent }
func (m *mockBatch) Rows() int                       { return len(m.rows) }
func (m *mockBatch) Columns() []column.Interface     { return nil }
func (m *mockBatch) Close() error                    { return nil }

func (m *mockBatch) Send() error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = true
	return nil
}

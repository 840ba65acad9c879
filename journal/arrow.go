package journal

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ultiledger/go-benor/consensus"
)

// DecisionSchema returns the Arrow schema of exported decisions.
//
// Fields:
//   - run: string
//   - node_id: int64
//   - value: string ("0" or "1")
//   - iteration: int64
//   - decided_at: timestamp[us, UTC]
func DecisionSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "run", Type: arrow.BinaryTypes.String},
			{Name: "node_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "value", Type: arrow.BinaryTypes.String},
			{Name: "iteration", Type: arrow.PrimitiveTypes.Int64},
			{Name: "decided_at", Type: arrow.FixedWidthTypes.Timestamp_us},
		},
		nil,
	)
}

// ExportArrow writes the decisions as a single record batch in the
// Arrow IPC stream format.
func ExportArrow(w io.Writer, decisions []Decision) error {
	schema := DecisionSchema()
	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	runBuilder := builder.Field(0).(*array.StringBuilder)
	nodeBuilder := builder.Field(1).(*array.Int64Builder)
	valueBuilder := builder.Field(2).(*array.StringBuilder)
	iterBuilder := builder.Field(3).(*array.Int64Builder)
	timeBuilder := builder.Field(4).(*array.TimestampBuilder)

	for _, d := range decisions {
		runBuilder.Append(d.Run)
		nodeBuilder.Append(int64(d.NodeID))
		valueBuilder.Append(d.Value.String())
		iterBuilder.Append(int64(d.Iteration))
		timeBuilder.Append(arrow.Timestamp(d.DecidedAt.UnixMicro()))
	}

	record := builder.NewRecord()
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// ReadArrow reads decisions written by ExportArrow.
func ReadArrow(r io.Reader) ([]Decision, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	if !reader.Schema().Equal(DecisionSchema()) {
		return nil, fmt.Errorf("unexpected schema: %s", reader.Schema())
	}

	var decisions []Decision
	for reader.Next() {
		record := reader.Record()
		runs := record.Column(0).(*array.String)
		nodes := record.Column(1).(*array.Int64)
		values := record.Column(2).(*array.String)
		iters := record.Column(3).(*array.Int64)
		times := record.Column(4).(*array.Timestamp)

		for i := 0; i < int(record.NumRows()); i++ {
			v, err := consensus.ParseValue(values.Value(i))
			if err != nil {
				return nil, err
			}
			decisions = append(decisions, Decision{
				Run:       runs.Value(i),
				NodeID:    int(nodes.Value(i)),
				Value:     v,
				Iteration: int(iters.Value(i)),
				DecidedAt: time.UnixMicro(int64(times.Value(i))).UTC(),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return decisions, nil
}

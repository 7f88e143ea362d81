package ctxutil

import (
	"context"
	"reflect"
	"testing"
)

func TestTraceDataRoundTrip(t *testing.T) {
	if GetTraceData(context.Background()) != nil {
		t.Fatalf("empty context should carry no trace data")
	}
	td := &TraceData{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736", RequestID: "req-1"}
	ctx := WithTraceData(context.Background(), td)
	if got := GetTraceData(ctx); got != td {
		t.Fatalf("GetTraceData: want %p got %p", td, got)
	}
}

func TestTraceDataLogFields(t *testing.T) {
	var none *TraceData
	if f := none.LogFields(); f != nil {
		t.Fatalf("nil trace data: %v", f)
	}
	got := (&TraceData{RequestID: "req-1"}).LogFields()
	if want := []interface{}{"request_id", "req-1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("LogFields: want=%v got=%v", want, got)
	}
}

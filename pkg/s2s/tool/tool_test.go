package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type weatherArgs struct {
	City string `json:"city"`
	Days int    `json:"days,omitempty"`
}

func TestNewFunc_DerivesSchema(t *testing.T) {
	tl, err := NewFunc("getweathertool", "looks up a forecast",
		func(ctx context.Context, args weatherArgs) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("NewFunc error: %v", err)
	}

	if tl.Name() != "getweathertool" {
		t.Errorf("Name() = %q, want getweathertool", tl.Name())
	}
	if tl.Description() != "looks up a forecast" {
		t.Errorf("Description() = %q", tl.Description())
	}

	schema := tl.Schema()
	if schema == nil {
		t.Fatal("Schema() = nil")
	}
	if _, ok := schema.Properties["city"]; !ok {
		t.Errorf("schema properties = %v, want city", schema.Properties)
	}
	if _, ok := schema.Properties["days"]; !ok {
		t.Errorf("schema properties = %v, want days", schema.Properties)
	}
}

func TestFunc_InvokeDecodesArgs(t *testing.T) {
	tl := MustNewFunc("getweathertool", "forecast",
		func(ctx context.Context, args weatherArgs) (any, error) {
			return args.City, nil
		})

	out, err := tl.Invoke(context.Background(), json.RawMessage(`{"city":"Berlin","days":3}`))
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if out != "Berlin" {
		t.Errorf("Invoke result = %v, want Berlin", out)
	}
}

func TestFunc_InvokeEmptyArgs(t *testing.T) {
	tl := MustNewFunc("getdatetool", "date",
		func(ctx context.Context, args struct{}) (any, error) {
			return "ok", nil
		})

	out, err := tl.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke with empty args error: %v", err)
	}
	if out != "ok" {
		t.Errorf("Invoke result = %v, want ok", out)
	}
}

func TestFunc_InvokeRepairsMalformedJSON(t *testing.T) {
	tl := MustNewFunc("getweathertool", "forecast",
		func(ctx context.Context, args weatherArgs) (any, error) {
			return args.City, nil
		})

	// Unquoted keys and a trailing comma, the way streamed model output
	// tends to arrive truncated or sloppy.
	out, err := tl.Invoke(context.Background(), json.RawMessage(`{city: "Oslo",}`))
	if err != nil {
		t.Fatalf("Invoke with repairable args error: %v", err)
	}
	if out != "Oslo" {
		t.Errorf("Invoke result = %v, want Oslo", out)
	}
}

func TestFunc_InvokeRejectsWrongShape(t *testing.T) {
	tl := MustNewFunc("getweathertool", "forecast",
		func(ctx context.Context, args weatherArgs) (any, error) {
			return args.City, nil
		})

	_, err := tl.Invoke(context.Background(), json.RawMessage(`[1,2,3]`))
	if !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("Invoke with array args = %v, want ErrInvalidArgs", err)
	}
}

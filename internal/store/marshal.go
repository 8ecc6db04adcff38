package store

import (
	"fmt"

	"github.com/roach88/schemahost/internal/ir"
)

// marshalValue converts an IRValue to canonical JSON TEXT for storage.
// A nil value is stored as the empty string.
func marshalValue(v ir.IRValue) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// marshalObject is marshalValue for optional objects: nil stays empty.
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		return "", nil
	}
	return marshalValue(obj)
}

func unmarshalArray(data string) (ir.IRArray, error) {
	if data == "" {
		return ir.IRArray{}, nil
	}
	var arr ir.IRArray
	if err := arr.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal array: %w", err)
	}
	return arr, nil
}

func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" {
		return nil, nil
	}
	var obj ir.IRObject
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

func unmarshalResult(data string) (ir.Result, error) {
	obj, err := unmarshalObject(data)
	if err != nil {
		return ir.Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	if obj == nil {
		return ir.None(), nil
	}
	return ir.ResultFromCanonical(obj), nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
)

// Decode decodes raw into a T. Decoding is strict: object fields T does not
// declare and data after the first value are errors. Cached and fresh
// results take the same path, so a cached payload that no longer matches T
// is an error, not a miss.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	err := dec.Decode(&v)
	if err == nil {
		var extra json.RawMessage
		if !errors.Is(dec.Decode(&extra), io.EOF) {
			err = errors.New("unexpected data after top-level value")
		}
	}
	if err != nil {
		var zero T
		return zero, &DecodeError{Type: reflect.TypeFor[T]().String(), Err: err}
	}
	return v, nil
}

// SelectAs is Select followed by Decode.
func SelectAs[T any](ctx context.Context, c *Client, target string) (T, error) {
	raw, err := c.Select(ctx, target)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](raw)
}

// QueryAs is Query followed by Decode.
func QueryAs[T any](ctx context.Context, c *Client, sql string, vars map[string]any) (T, error) {
	raw, err := c.Query(ctx, sql, vars)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](raw)
}

// Copyright 2023 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plutus provides safe path-indexed reads over Plutus data that the
// upstream follower delivers pre-decoded as a JSON-shaped tree of
// constructor/fields/int/bytes/list nodes.
package plutus

import (
	"fmt"
	"strings"
)

// Data is one node of a decoded Plutus data tree. At most one of the typed
// members is populated for a well-formed node.
type Data struct {
	Constructor *int64  `json:"constructor,omitempty"`
	Fields      []Data  `json:"fields,omitempty"`
	Int         *int64  `json:"int,omitempty"`
	Bytes       *string `json:"bytes,omitempty"`
	List        []Data  `json:"list,omitempty"`
}

// ShapeError reports a datum whose tree doesn't match the shape a protocol
// interpreter expects. Path is the list of field indexes that was being
// descended when the mismatch was found.
type ShapeError struct {
	Path []int
	Want string
}

func (e *ShapeError) Error() string {
	steps := make([]string, 0, len(e.Path))
	for _, p := range e.Path {
		steps = append(steps, fmt.Sprintf("fields[%d]", p))
	}
	if len(steps) == 0 {
		return fmt.Sprintf("datum shape mismatch: want %s at root", e.Want)
	}
	return fmt.Sprintf(
		"datum shape mismatch: want %s at %s",
		e.Want,
		strings.Join(steps, "."),
	)
}

func shapeError(path []int, want string) error {
	// Copy the path so that the error stays stable if the caller reuses
	// its slice
	return &ShapeError{Path: append([]int{}, path...), Want: want}
}

// descend walks the constructor fields along path
func (d *Data) descend(path []int) (*Data, error) {
	node := d
	for i, idx := range path {
		if idx < 0 || idx >= len(node.Fields) {
			return nil, shapeError(path[:i+1], "field")
		}
		node = &node.Fields[idx]
	}
	return node, nil
}

// IntAt returns the integer at the given field path
func (d *Data) IntAt(path ...int) (int64, error) {
	node, err := d.descend(path)
	if err != nil {
		return 0, err
	}
	if node.Int == nil {
		return 0, shapeError(path, "int")
	}
	return *node.Int, nil
}

// BytesAt returns the hex-encoded byte string at the given field path
func (d *Data) BytesAt(path ...int) (string, error) {
	node, err := d.descend(path)
	if err != nil {
		return "", err
	}
	if node.Bytes == nil {
		return "", shapeError(path, "bytes")
	}
	return *node.Bytes, nil
}

// ConstructorAt returns the constructor tag at the given field path
func (d *Data) ConstructorAt(path ...int) (int64, error) {
	node, err := d.descend(path)
	if err != nil {
		return 0, err
	}
	if node.Constructor == nil {
		return 0, shapeError(path, "constructor")
	}
	return *node.Constructor, nil
}

// IntListAt returns the list of integers at the given field path
func (d *Data) IntListAt(path ...int) ([]int64, error) {
	node, err := d.descend(path)
	if err != nil {
		return nil, err
	}
	if node.List == nil {
		return nil, shapeError(path, "list")
	}
	ret := make([]int64, 0, len(node.List))
	for _, item := range node.List {
		if item.Int == nil {
			return nil, shapeError(path, "list of int")
		}
		ret = append(ret, *item.Int)
	}
	return ret, nil
}

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

package store

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for entities the store doesn't have. Wrapped
// with the entity name.
var ErrNotFound = errors.New("not found")

// ShapeError marks input records missing data the schema requires
type ShapeError struct {
	Entity string
	Field  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s is missing %s", e.Entity, e.Field)
}

func notFound(entity string) error {
	return fmt.Errorf("%s: %w", entity, ErrNotFound)
}

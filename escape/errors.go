// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package escape

import "errors"

// Sentinel errors returned by Run. A non-nil error means the result is
// unusable; the caller should discard the graph's synthesized phi/object-state
// nodes along with the rest of the compilation unit rather than rely on a
// pristine rollback.
var (
	// ErrCapacityExceeded is returned when the node count exceeds the usable
	// alias-id space.
	ErrCapacityExceeded = errors.New("escape: node count exceeds alias-id space")

	// ErrUnsupportedUse is returned when status analysis encounters an
	// effectful value flowing to a use with no effect input.
	ErrUnsupportedUse = errors.New("escape: effectful value flows to a use with no effect input")

	// ErrDanglingEffect is returned when, during forwarding, a non-load node
	// has no effect output yet appears as a dangling effect consumer.
	ErrDanglingEffect = errors.New("escape: non-load node has no effect output but is a dangling effect consumer")
)

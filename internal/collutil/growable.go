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

// Package collutil provides small growable-collection helpers shared by the
// object analysis's and status analysis's node-id indexed tables.
package collutil

// EnsureLen grows s to have at least n elements, preserving existing entries
// and zero-filling the rest, using geometric (doubling) growth so that
// repeated single-element growth stays amortized O(1) per element. Node-id
// indexed tables grow this way whenever a pass synthesizes new nodes.
func EnsureLen[T any](s []T, n int) []T {
	if n <= len(s) {
		return s
	}
	cap2 := cap(s)
	if cap2 == 0 {
		cap2 = 8
	}
	for cap2 < n {
		cap2 *= 2
	}
	grown := make([]T, n, cap2)
	copy(grown, s)
	return grown
}

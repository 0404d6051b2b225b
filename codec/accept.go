// Copyright 2025 The Rivaas Authors
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

package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// acceptSpec is one parsed Accept header range with its quality.
type acceptSpec struct {
	mediaType string // lowercased, may contain wildcards
	quality   float64
	order     int // header position, for stable tie-breaking
}

// specificity ranks exact > type wildcard > full wildcard.
func (s acceptSpec) specificity() int {
	t, sub := splitMediaType(s.mediaType)
	switch {
	case t == "*":
		return 1
	case sub == "*":
		return 2
	default:
		return 3
	}
}

// Negotiate picks the encoder for an Accept header. An empty header (or
// one that is pure wildcards) yields the first registered encoder.
// Ranges sort by quality, then specificity, then header position; the
// first range any encoder satisfies wins. No satisfiable range means
// ErrNotAcceptable.
func (r *Registry) Negotiate(accept string) (Encoder, error) {
	if len(r.order) == 0 {
		return nil, ErrNotAcceptable
	}
	specs := parseAccept(accept)
	if len(specs) == 0 {
		return r.encoders[r.order[0]], nil
	}

	sort.SliceStable(specs, func(i, j int) bool {
		if specs[i].quality != specs[j].quality {
			return specs[i].quality > specs[j].quality
		}
		if si, sj := specs[i].specificity(), specs[j].specificity(); si != sj {
			return si > sj
		}
		return specs[i].order < specs[j].order
	})

	for _, spec := range specs {
		if spec.quality == 0 {
			break
		}
		for _, offer := range r.order {
			if mediaTypeMatches(offer, spec.mediaType) {
				return r.encoders[offer], nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotAcceptable, accept)
}

// parseAccept splits an Accept header into ranges. Malformed parts are
// skipped rather than failing the whole header.
func parseAccept(header string) []acceptSpec {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}

	var specs []acceptSpec
	for i, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		mediaType := normalize(fields[0])
		if mediaType == "" || !strings.Contains(mediaType, "/") {
			continue
		}
		spec := acceptSpec{mediaType: mediaType, quality: 1.0, order: i}
		for _, f := range fields[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(f), "=")
			if !ok || strings.TrimSpace(k) != "q" {
				continue
			}
			if q, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && q >= 0 && q <= 1 {
				spec.quality = q
			}
		}
		specs = append(specs, spec)
	}

	return specs
}

func mediaTypeMatches(offer, pattern string) bool {
	if pattern == "*/*" || pattern == offer {
		return true
	}
	pt, psub := splitMediaType(pattern)
	ot, _ := splitMediaType(offer)

	return psub == "*" && pt == ot
}

func splitMediaType(mediaType string) (string, string) {
	t, sub, ok := strings.Cut(mediaType, "/")
	if !ok {
		return mediaType, "*"
	}

	return t, sub
}

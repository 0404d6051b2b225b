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

// Package validation checks request and response records against struct
// tag rules, producing localized field errors in a stable wire shape.
//
//	v := validation.MustNew(
//	    validation.WithLocale("nl"),
//	    validation.WithMessages("nl", validation.Messages{"required": "is verplicht"}),
//	)
//	if err := v.Validate(&req); err != nil {
//	    var verr *validation.Error
//	    errors.As(err, &verr) // verr.Fields holds path, message, invalidValue
//	}
//
// Validation groups select alternate tag sets: Validate(&req, "create")
// reads rules from `create:"..."` tags instead of `validate:"..."`.
package validation

// Copyright 2025 Antfly, Inc.
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

package ner

import "strings"

// Subcategory tags derived from coarse entity types.
const (
	TagNamedEntity  = "named_entity"
	TagPerson       = "person"
	TagOrganization = "organization"
	TagLocation     = "location"
)

// NormalizeLabel normalizes BIO/BIOES labels to a standard form.
// Examples:
//   - "B-PER" -> "PER"
//   - "I-ORG" -> "ORG"
//   - "B-LOCATION" -> "LOC"
//   - "I-MISC" -> "MISC"
//   - "O" -> "" (outside)
func NormalizeLabel(label string) string {
	if IsBIOOutside(label) {
		return ""
	}

	label = strings.ToUpper(GetLabelType(label))
	switch label {
	case "PERSON", "PEOPLE":
		return "PER"
	case "ORGANIZATION", "ORGANISATIONS", "COMPANY":
		return "ORG"
	case "LOCATION", "PLACE", "GPE":
		return "LOC"
	case "MISCELLANEOUS":
		return "MISC"
	default:
		return label
	}
}

// IsBIOBegin checks if a label is a beginning token (B-).
func IsBIOBegin(label string) bool {
	return strings.HasPrefix(label, "B-")
}

// IsBIOInside checks if a label is an inside token (I-).
func IsBIOInside(label string) bool {
	return strings.HasPrefix(label, "I-")
}

// IsBIOOutside checks if a label is an outside token (O).
func IsBIOOutside(label string) bool {
	return label == "O" || label == ""
}

// GetLabelType extracts the entity type from a BIO label.
// Returns empty string for O labels; bare labels are returned unchanged.
func GetLabelType(label string) string {
	if IsBIOOutside(label) {
		return ""
	}
	if IsBIOBegin(label) || IsBIOInside(label) {
		return label[2:]
	}
	return label
}

// Subcategories returns the raw entity type followed by the richer tags
// implied by known coarse types. Unrecognized types get only their own tag.
func Subcategories(entityType string) []string {
	tags := []string{entityType}
	switch NormalizeLabel(entityType) {
	case "PER":
		tags = append(tags, TagNamedEntity, TagPerson)
	case "ORG":
		tags = append(tags, TagNamedEntity, TagOrganization)
	case "LOC":
		tags = append(tags, TagNamedEntity, TagLocation)
	}
	return tags
}

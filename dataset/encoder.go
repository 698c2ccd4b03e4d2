// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"strings"
)

const (
	UnknownValue = "unknown"
	NoneValue    = "none"
)

type attribute[T any] struct {
	name     string
	sentinel string
	value    func(T) string
}

var userAttributes = []attribute[User]{
	{name: "age", sentinel: UnknownValue, value: func(u User) string { return u.Age }},
	{name: "gender", sentinel: UnknownValue, value: func(u User) string { return u.Gender }},
	{name: "diet_preference", sentinel: NoneValue, value: func(u User) string { return u.DietPreference }},
	{name: "fav_category", sentinel: NoneValue, value: func(u User) string { return u.FavCategory }},
}

var itemAttributes = []attribute[Item]{
	{name: "category", sentinel: UnknownValue, value: func(i Item) string { return i.Category }},
}

func encode[T any](attributes []attribute[T], record T) []string {
	tags := make([]string, len(attributes))
	for i, attr := range attributes {
		value := strings.TrimSpace(attr.value(record))
		if value == "" {
			value = attr.sentinel
		}
		tags[i] = attr.name + ":" + value
	}
	return tags
}

// EncodeUser converts demographic attributes of a user to tags such as "gender:female". A missing
// attribute becomes its sentinel tag, so the result is never empty.
func EncodeUser(user User) []string {
	return encode(userAttributes, user)
}

// EncodeItem converts attributes of an item to tags such as "category:Snack".
func EncodeItem(item Item) []string {
	return encode(itemAttributes, item)
}

// FeatureEncoder accumulates the tag vocabulary shared by users and items.
type FeatureEncoder struct {
	vocabulary *Dict
}

func NewFeatureEncoder() *FeatureEncoder {
	return &FeatureEncoder{vocabulary: NewDict()}
}

// FitUsers encodes users and returns tag indices per user.
func (e *FeatureEncoder) FitUsers(users []User) [][]int32 {
	result := make([][]int32, len(users))
	for i, user := range users {
		result[i] = e.fit(EncodeUser(user))
	}
	return result
}

// FitItems encodes items and returns tag indices per item.
func (e *FeatureEncoder) FitItems(items []Item) [][]int32 {
	result := make([][]int32, len(items))
	for i, item := range items {
		result[i] = e.fit(EncodeItem(item))
	}
	return result
}

func (e *FeatureEncoder) fit(tags []string) []int32 {
	indices := make([]int32, len(tags))
	for i, tag := range tags {
		indices[i] = e.vocabulary.Observe(tag)
	}
	return indices
}

// Transform looks up tags without growing the vocabulary. Unknown tags are skipped.
func (e *FeatureEncoder) Transform(tags []string) []int32 {
	indices := make([]int32, 0, len(tags))
	for _, tag := range tags {
		if index, ok := e.vocabulary.Id(tag); ok {
			indices = append(indices, index)
		}
	}
	return indices
}

func (e *FeatureEncoder) Count() int32 {
	return e.vocabulary.Count()
}

// Vocabulary returns all tags ordered by index.
func (e *FeatureEncoder) Vocabulary() []string {
	return e.vocabulary.Ids()
}

// Fit encodes users and items in one pass over a shared vocabulary.
func (e *FeatureEncoder) Fit(users []User, items []Item) ([][]int32, [][]int32) {
	return e.FitUsers(users), e.FitItems(items)
}

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

// User is a row of the user table. Demographic attributes are optional.
type User struct {
	UserId         string `json:"user_id"`
	Age            string `json:"age"`
	Gender         string `json:"gender"`
	DietPreference string `json:"diet_preference"`
	FavCategory    string `json:"fav_category"`
}

// Item is a row of the menu. Price is informational and never used by models.
type Item struct {
	ItemId   string  `json:"item_id"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

// Interaction is an order line. Rating is either an explicit rating or a purchased quantity,
// depending on the aggregation policy agreed with the data source.
type Interaction struct {
	UserId string  `json:"user_id"`
	ItemId string  `json:"item_id"`
	Rating float32 `json:"rating"`
}

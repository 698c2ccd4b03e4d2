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

package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/canteen/config"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/logics"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/suite"
)

const apiKey = "test_api_key"

type ServerTestSuite struct {
	suite.Suite
	RestServer
	handler *restful.Container
}

func (suite *ServerTestSuite) SetupSuite() {
	items := []dataset.Item{
		{ItemId: "A", Category: "Snack"},
		{ItemId: "B", Category: "Lunch"},
		{ItemId: "C", Category: "snack"},
		{ItemId: "D", Category: "Beverage"},
		{ItemId: "E", Category: "Lunch"},
	}
	orders := []dataset.Interaction{
		{UserId: "U1", ItemId: "A", Rating: 1},
		{UserId: "U1", ItemId: "B", Rating: 1},
		{UserId: "U2", ItemId: "A", Rating: 1},
		{UserId: "U2", ItemId: "B", Rating: 1},
		{UserId: "U3", ItemId: "A", Rating: 1},
		{UserId: "U3", ItemId: "C", Rating: 1},
		{UserId: "U4", ItemId: "D", Rating: 1},
		{UserId: "U5", ItemId: "A", Rating: 1},
	}
	d, err := dataset.NewDataset(
		[]dataset.User{{UserId: "U1"}, {UserId: "U2"}, {UserId: "U3"}, {UserId: "U4"}, {UserId: "U5"}, {UserId: "U6"}},
		items, orders)
	suite.NoError(err)
	suite.Recommender = logics.NewRecommender(nil, logics.NewPivot(d))
	suite.Catalog = logics.NewCatalog(items, orders)
	suite.Config = config.GetDefaultConfig()
	suite.handler = suite.NewContainer()
}

func (suite *ServerTestSuite) SetupTest() {
	suite.Config.Server.APIKey = ""
}

func (suite *ServerTestSuite) marshal(v interface{}) string {
	s, err := json.Marshal(v)
	suite.NoError(err)
	return string(s)
}

func (suite *ServerTestSuite) TestHealth() {
	apitest.New().
		Handler(suite.handler).
		Get("/api/health").
		Expect(suite.T()).
		Status(http.StatusOK).
		Body(`{"ok":true}`).
		End()
}

func (suite *ServerTestSuite) TestRecommend() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/U5").
		QueryParams(map[string]string{"n": "2"}).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(Recommendation{UserId: "U5", Mode: "item_similarity", Items: []string{"B", "C"}})).
		End()
	// cold start users get popular items
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/U9").
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(Recommendation{UserId: "U9", Mode: "popularity", Items: []string{"A", "B", "C", "D", "E"}})).
		End()
}

func (suite *ServerTestSuite) TestInvalidN() {
	for _, n := range []string{"0", "-1", "51", "five"} {
		apitest.New().
			Handler(suite.handler).
			Get("/api/popular").
			QueryParams(map[string]string{"n": n}).
			Expect(suite.T()).
			Status(http.StatusBadRequest).
			End()
	}
}

func (suite *ServerTestSuite) TestPopular() {
	apitest.New().
		Handler(suite.handler).
		Get("/api/popular").
		QueryParams(map[string]string{"n": "2"}).
		Expect(suite.T()).
		Status(http.StatusOK).
		Body(suite.marshal(RankedItems{Mode: "popular", Items: []logics.Score{{Id: "A", Score: 4}, {Id: "B", Score: 2}}})).
		End()
}

func (suite *ServerTestSuite) TestTopRated() {
	apitest.New().
		Handler(suite.handler).
		Get("/api/top-rated").
		QueryParams(map[string]string{"n": "3"}).
		Expect(suite.T()).
		Status(http.StatusOK).
		Body(suite.marshal(RankedItems{Mode: "top-rated", Items: []logics.Score{{Id: "A", Score: 1}, {Id: "B", Score: 1}, {Id: "C", Score: 1}}})).
		End()
}

func (suite *ServerTestSuite) TestCategory() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/category/SNACK").
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(CategoryItems{Mode: "category", Category: "SNACK", Items: []string{"A", "C"}})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/category/Dessert").
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(CategoryItems{Mode: "category", Category: "Dessert", Items: []string{}})).
		End()
}

func (suite *ServerTestSuite) TestAuth() {
	t := suite.T()
	suite.Config.Server.APIKey = apiKey
	apitest.New().
		Handler(suite.handler).
		Get("/api/popular").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/popular").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		End()
}

func (suite *ServerTestSuite) TestAPIDocs() {
	apitest.New().
		Handler(suite.handler).
		Get(apiDocsPath).
		Expect(suite.T()).
		Status(http.StatusOK).
		End()
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

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
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/config"
	"github.com/gorse-io/canteen/logics"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const apiDocsPath = "/apidocs.json"

// RestServer implements a RESTful API server.
type RestServer struct {
	Recommender *logics.Recommender
	Catalog     *logics.Catalog
	Config      *config.Config
	WebService  *restful.WebService
}

// Recommendation is the response of the recommend API.
type Recommendation struct {
	UserId string   `json:"user_id"`
	Mode   string   `json:"mode"`
	Items  []string `json:"items"`
}

// RankedItems is the response of the popular and top-rated APIs.
type RankedItems struct {
	Mode  string         `json:"mode"`
	Items []logics.Score `json:"items"`
}

// CategoryItems is the response of the category API.
type CategoryItems struct {
	Mode     string   `json:"mode"`
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

// NewContainer creates a container serving the APIs, API docs and metrics.
func (s *RestServer) NewContainer() *restful.Container {
	s.CreateWebService()
	container := restful.NewContainer()
	container.Add(s.WebService)
	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     apiDocsPath,
	}))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// StartHttpServer serves until the context is canceled.
func (s *RestServer) StartHttpServer(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port),
		Handler: s.NewContainer(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Logger().Error("failed to shutdown http server", zap.Error(err))
		}
	}()
	log.Logger().Info("start http server", zap.String("url", fmt.Sprintf("http://%s", server.Addr)))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	log.Logger().Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	if s.WebService == nil {
		s.WebService = new(restful.WebService)
	}
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("canteen"))
	ws.Filter(LogFilter)

	ws.Route(ws.GET("/health").To(s.health).
		Doc("Check whether the server is up.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}))

	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommendation for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes(Recommendation{}))

	ws.Route(ws.GET("/popular").To(s.getPopular).
		Doc("Get the most ordered items.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"catalog"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes(RankedItems{}))
	ws.Route(ws.GET("/top-rated").To(s.getTopRated).
		Doc("Get the items with the highest mean rating.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"catalog"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes(RankedItems{}))
	ws.Route(ws.GET("/category/{category}").To(s.getCategory).
		Doc("Get the items of a category.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"catalog"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("category", "category of items, case insensitive").DataType("string")).
		Writes(CategoryItems{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

func (s *RestServer) parseN(request *restful.Request) (int, error) {
	n, err := ParseInt(request, "n", s.Config.Recommend.TopN)
	if err != nil {
		return 0, errors.NotValidf("n %q", request.QueryParameter("n"))
	}
	if n < 1 || n > s.Config.Server.MaxN {
		return 0, errors.NotValidf("n must be between 1 and %d, got %d", s.Config.Server.MaxN, n)
	}
	return n, nil
}

func (s *RestServer) health(_ *restful.Request, response *restful.Response) {
	Ok(response, map[string]bool{"ok": true})
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	start := time.Now()
	userId := request.PathParameter("user-id")
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	items, path := s.Recommender.RecommendWithPath(userId, n)
	GetRecommendSeconds.Observe(time.Since(start).Seconds())
	Ok(response, Recommendation{UserId: userId, Mode: string(path), Items: items})
}

func (s *RestServer) getPopular(request *restful.Request, response *restful.Response) {
	s.getRanked("popular", s.Catalog.PopularByCount, request, response)
}

func (s *RestServer) getTopRated(request *restful.Request, response *restful.Response) {
	s.getRanked("top-rated", s.Catalog.TopRated, request, response)
}

func (s *RestServer) getRanked(mode string, query func(int) []logics.Score, request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	start := time.Now()
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	items := query(n)
	GetCatalogSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	Ok(response, RankedItems{Mode: mode, Items: items})
}

func (s *RestServer) getCategory(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	start := time.Now()
	category := request.PathParameter("category")
	items := s.Catalog.ByCategory(category)
	if items == nil {
		items = []string{}
	}
	GetCatalogSeconds.WithLabelValues("category").Observe(time.Since(start).Seconds())
	Ok(response, CategoryItems{Mode: "category", Category: category, Items: items})
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.Logger().Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.Logger().Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.Logger().Error("failed to write json", zap.Error(err))
	}
}

func (s *RestServer) auth(request *restful.Request, response *restful.Response) bool {
	if s.Config.Server.APIKey == "" {
		return true
	}
	apikey := request.HeaderParameter("X-API-Key")
	if apikey == s.Config.Server.APIKey {
		return true
	}
	log.Logger().Error("unauthorized", zap.String("X-API-Key", apikey))
	if err := response.WriteError(http.StatusUnauthorized, errors.New("unauthorized")); err != nil {
		log.Logger().Error("failed to write error", zap.Error(err))
	}
	return false
}

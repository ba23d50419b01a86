// Copyright 2022 gorse Project Authors
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

package master

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cortexeng/cortex/base/log"
	"github.com/cortexeng/cortex/cmd/version"
	"github.com/cortexeng/cortex/config"
	"github.com/cortexeng/cortex/dataset"
	"github.com/cortexeng/cortex/logics"
	"github.com/cortexeng/cortex/storage/data"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const apiDocsPath = "/apidocs.json"

// RestServer implements a REST-ful API server.
type RestServer struct {
	Config     *config.Config
	DataClient data.Database
	Model      *Model
	HttpServer *http.Server
	WebService *restful.WebService
}

// StartHttpServer starts the REST-ful API server and blocks until it stops.
func (s *RestServer) StartHttpServer() {
	container := s.CreateContainer()
	// register prometheus
	container.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.HttpServer = &http.Server{Addr: addr, Handler: container}
	log.Logger().Info("start http server", zap.String("url", "http://"+addr))
	if err := s.HttpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Logger().Fatal("failed to start http server", zap.Error(err))
	}
}

// ShutdownHttpServer waits for in-flight requests until the shutdown timeout.
func (s *RestServer) ShutdownHttpServer() error {
	if s.HttpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()
	return errors.Trace(s.HttpServer.Shutdown(ctx))
}

// CreateContainer creates a container serving the web service and its OpenAPI document.
func (s *RestServer) CreateContainer() *restful.Container {
	container := restful.NewContainer()
	container.Add(s.CreateWebService())
	specConfig := restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       apiDocsPath,
		PostBuildSwaggerObjectHandler: enrichSwaggerObject,
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	return container
}

func enrichSwaggerObject(swo *spec.Swagger) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "Cortex",
			Description: "Movie rating prediction and recommendation by user-based collaborative filtering.",
			Version:     version.Version,
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{Name: "predict", Description: "Predict ratings"}},
		{TagProps: spec.TagProps{Name: "recommend", Description: "Recommend movies"}},
		{TagProps: spec.TagProps{Name: "data", Description: "Insert ratings, movies and users"}},
		{TagProps: spec.TagProps{Name: "model", Description: "Inspect and refit the model"}},
	}
}

// RequestIdFilter assigns every request an id echoed in the X-Request-ID header.
func RequestIdFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set("X-Request-ID", requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("time_used", time.Since(start)))
}

// AuthFilter rejects requests without the configured API key.
func (s *RestServer) AuthFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if s.Config.Server.APIKey == "" {
		chain.ProcessFilter(req, resp)
		return
	}
	if req.HeaderParameter("X-API-Key") == s.Config.Server.APIKey {
		chain.ProcessFilter(req, resp)
		return
	}
	log.ResponseLogger(resp).Error("unauthorized", zap.String("X-API-Key", req.HeaderParameter("X-API-Key")))
	if err := resp.WriteError(http.StatusUnauthorized, fmt.Errorf("unauthorized")); err != nil {
		log.ResponseLogger(resp).Error("failed to write error", zap.Error(err))
	}
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("cortex"))
	ws.Filter(RequestIdFilter)
	ws.Filter(LogFilter)
	ws.Filter(s.AuthFilter)

	// Predict a rating
	ws.Route(ws.GET("/predict/{user-id}/{movie-id}").To(s.getPredict).
		Doc("Predict the rating of a user on a movie.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"predict"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.PathParameter("movie-id", "identifier of the movie").DataType("integer")).
		Returns(http.StatusOK, "OK", PredictResponse{}).
		Writes(PredictResponse{}))
	// Recommend movies
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Recommend movies to a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommend"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned movies").DataType("integer")).
		Returns(http.StatusOK, "OK", []logics.Recommendation{}).
		Returns(http.StatusNotFound, "unknown user", nil).
		Writes([]logics.Recommendation{}))
	// Insert ratings
	ws.Route(ws.POST("/ratings/{user-id}").To(s.insertRatings).
		Doc("Insert ratings of a user. The body maps movie ids to ratings.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"data"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Reads(map[string]float64{}).
		Returns(http.StatusOK, "OK", Success{}).
		Returns(http.StatusBadRequest, "invalid ratings", nil).
		Writes(Success{}))
	// Insert movies
	ws.Route(ws.POST("/movies").To(s.insertMovies).
		Doc("Insert movies.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"data"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads([]data.Movie{}).
		Writes(Success{}))
	// Get a movie
	ws.Route(ws.GET("/movie/{movie-id}").To(s.getMovie).
		Doc("Get a movie.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"data"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("movie-id", "identifier of the movie").DataType("integer")).
		Writes(data.Movie{}))
	// Insert users
	ws.Route(ws.POST("/users").To(s.insertUsers).
		Doc("Insert users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"data"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads([]data.User{}).
		Writes(Success{}))
	// Model status
	ws.Route(ws.GET("/model").To(s.getModel).
		Doc("Get the status of the model.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(Stats{}))
	// Refit the model
	ws.Route(ws.POST("/model/fit").To(s.fitModel).
		Doc("Refit the model on the current ratings.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(Stats{}))
	// Version
	ws.Route(ws.GET("/version").To(s.getVersion).
		Doc("Get the version of the server.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Writes(version.Info{}))
	s.WebService = ws
	return ws
}

// PredictResponse carries a prediction. PredictedRating is null without an estimate.
type PredictResponse struct {
	PredictedRating *float64 `json:"predicted_rating"`
	IsEstimate      bool     `json:"is_estimate"`
	Reason          string   `json:"reason"`
	Cause           string   `json:"cause,omitempty"`
}

// Success is the returned data structure for data insert operations.
type Success struct {
	RowAffected int
}

func parsePathId(request *restful.Request, name string) (int, error) {
	value := request.PathParameter(name)
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.NotValidf("%s `%v`", name, value)
	}
	return id, nil
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

func (s *RestServer) getPredict(request *restful.Request, response *restful.Response) {
	userId, err := parsePathId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	movieId, err := parsePathId(request, "movie-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	prediction := s.Model.Predict(userId, movieId)
	result := PredictResponse{
		IsEstimate: prediction.IsEstimate(),
		Reason:     prediction.Reason.String(),
		Cause:      prediction.Cause.String(),
	}
	if prediction.IsEstimate() {
		result.PredictedRating = lo.ToPtr(prediction.Value)
	}
	Ok(response, result)
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	userId, err := parsePathId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	n, err := ParseInt(request, "n", s.Config.Recommend.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	recommendations, err := s.Model.Recommend(userId, n)
	if err != nil {
		if errors.IsNotFound(err) {
			PageNotFound(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	Ok(response, recommendations)
}

func (s *RestServer) insertRatings(request *restful.Request, response *restful.Response) {
	userId, err := parsePathId(request, "user-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	var body map[string]float64
	if err = request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	ratings := make(map[int]float64, len(body))
	for key, rating := range body {
		movieId, err := strconv.Atoi(key)
		if err != nil {
			BadRequest(response, errors.NotValidf("movie id `%v`", key))
			return
		}
		ratings[movieId] = rating
	}
	// persist valid ratings before they reach the model
	bound := dataset.Bound{Min: s.Config.Model.MinRating, Max: s.Config.Model.MaxRating}
	timestamp := time.Now()
	valid := make([]data.Rating, 0, len(ratings))
	for movieId, rating := range ratings {
		if bound.Contains(rating) {
			valid = append(valid, data.Rating{UserId: userId, MovieId: movieId, Rating: rating, Timestamp: timestamp})
		}
	}
	if len(valid) > 0 {
		if err = s.DataClient.BatchInsertRatings(request.Request.Context(), valid); err != nil {
			InternalServerError(response, err)
			return
		}
	}
	if err = s.Model.Ingest(userId, ratings); err != nil {
		if errors.IsNotValid(err) {
			BadRequest(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	Ok(response, Success{RowAffected: len(valid)})
}

func (s *RestServer) insertMovies(request *restful.Request, response *restful.Response) {
	var movies []data.Movie
	if err := request.ReadEntity(&movies); err != nil {
		BadRequest(response, err)
		return
	}
	for i := range movies {
		if movies[i].Genres == nil {
			movies[i].Genres = []string{}
		}
	}
	if err := s.DataClient.BatchInsertMovies(request.Request.Context(), movies); err != nil {
		InternalServerError(response, err)
		return
	}
	if err := s.Model.AddMovies(movies); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: len(movies)})
}

func (s *RestServer) getMovie(request *restful.Request, response *restful.Response) {
	movieId, err := parsePathId(request, "movie-id")
	if err != nil {
		BadRequest(response, err)
		return
	}
	if movie, ok := s.Model.GetMovie(movieId); ok {
		Ok(response, movie)
		return
	}
	movie, err := s.DataClient.GetMovie(request.Request.Context(), movieId)
	if err != nil {
		if errors.IsNotFound(err) {
			PageNotFound(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	Ok(response, movie)
}

func (s *RestServer) insertUsers(request *restful.Request, response *restful.Response) {
	var users []data.User
	if err := request.ReadEntity(&users); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.DataClient.BatchInsertUsers(request.Request.Context(), users); err != nil {
		InternalServerError(response, err)
		return
	}
	if err := s.Model.AddUsers(users); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: len(users)})
}

func (s *RestServer) getModel(_ *restful.Request, response *restful.Response) {
	Ok(response, s.Model.Stats())
}

func (s *RestServer) fitModel(_ *restful.Request, response *restful.Response) {
	if err := s.Model.Fit(); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, s.Model.Stats())
}

func (s *RestServer) getVersion(_ *restful.Request, response *restful.Response) {
	Ok(response, version.Get())
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

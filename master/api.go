/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package master

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model/common"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/model/task"
	"github.com/wentaojin/docwh/openapi"
	"github.com/wentaojin/docwh/service"
	"github.com/wentaojin/docwh/utils/constant"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initOpenAPIHandler returns a HTTP handler to handle docwh-master apis
func (s *Server) initOpenAPIHandler() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(s.cors())

	// add a ginzap middleware, which:
	//   - log requests, like a combined access and error log.
	r.Use(ginzap.GinzapWithConfig(logger.GetRootLogger().With(zap.String("component", "gin")), &ginzap.Config{
		TimeFormat: logger.LogTimeFmt,
		UTC:        false,
		Context: func(c *gin.Context) []zapcore.Field {
			if c.Request.Body == nil {
				return nil
			}
			var buf bytes.Buffer
			body, _ := io.ReadAll(io.TeeReader(c.Request.Body, &buf))
			c.Request.Body = io.NopCloser(&buf)
			return []zapcore.Field{zap.String("body", string(body))}
		}}))

	// logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(logger.GetRootLogger().With(zap.String("component", "gin")), true))

	r.Any(openapi.DebugAPIBasePath+"/pprof/*any", gin.WrapH(openapi.GetHTTPDebugHandler()))

	api := r.Group(openapi.APIBasePath)
	api.GET(openapi.APIWorkerPath, s.listWorkersHandler)
	api.GET(openapi.APIExportPath, s.listExportsHandler)
	api.GET(openapi.APIExportPath+"/:transaction/:export", s.exportStatusHandler)
	api.POST(openapi.APIExportPath+"/:transaction/:export/"+openapi.APIOperatePlay, s.playHandler)
	api.POST(openapi.APIExportPath+"/:transaction/:export/"+openapi.APIOperatePause, s.pauseHandler)
	api.GET(openapi.APIEventPath, s.listEventsHandler)
	api.GET(openapi.APITaskPath, s.listTasksHandler)
	api.POST(openapi.APITaskPath+"/:transaction/:export/:collection/"+openapi.APIOperateError, s.taskErrorHandler)

	// scale and schedule belong to the leader, followers forward them
	leader := api.Group("", s.reverseProxy())
	leader.POST(openapi.APIScalePath, s.scaleHandler)
	leader.POST(openapi.APISchedulePath+"/:name", s.scheduleHandler)
	return r
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, openapi.Response{Code: http.StatusOK, Data: data})
}

func failure(c *gin.Context, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		logger.Error("api request failed", zap.String("request URL", c.Request.URL.String()), zap.Error(err))
	}
	c.AbortWithStatusJSON(code, openapi.Response{Code: code, Error: err.Error()})
}

// StatusCode maps service errors onto http status codes
func StatusCode(err error) int {
	switch {
	case service.IsInvalidInput(err):
		return http.StatusBadRequest
	case service.IsInvalidStateChange(err), errors.Is(err, service.ErrScaleInFlight):
		return http.StatusConflict
	case errors.Is(err, common.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &service.InvalidInputError{Err: fmt.Errorf("query [%s] value [%s] is not an integer", key, v)}
	}
	return n, nil
}

func queryPage(c *gin.Context) (int, int, error) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := queryInt(c, "pageSize", constant.DefaultListPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func exportKey(c *gin.Context) export.Key {
	return export.Key{Transaction: c.Param("transaction"), Export: c.Param("export")}
}

func (s *Server) listWorkersHandler(c *gin.Context) {
	page, pageSize, err := queryPage(c)
	if err != nil {
		failure(c, err)
		return
	}
	filter := &service.WorkerFilter{NamePrefix: c.Query("prefix"), Page: page, PageSize: pageSize}
	if v := c.Query("alive"); v != "" {
		if filter.AliveOnly, err = strconv.ParseBool(v); err != nil {
			failure(c, &service.InvalidInputError{Err: fmt.Errorf("query [alive] value [%s] is not a boolean", v)})
			return
		}
	}
	workers, err := s.scaling.List(c.Request.Context(), filter)
	if err != nil {
		failure(c, err)
		return
	}
	success(c, workers)
}

func (s *Server) scaleHandler(c *gin.Context) {
	res, err := s.scaling.Scale(c.Request.Context())
	if err != nil {
		failure(c, err)
		return
	}
	success(c, res)
}

func (s *Server) listExportsHandler(c *gin.Context) {
	page, pageSize, err := queryPage(c)
	if err != nil {
		failure(c, err)
		return
	}
	exports, err := s.exports.ListExports(c.Request.Context(), c.Query("name"), page, pageSize)
	if err != nil {
		failure(c, err)
		return
	}
	success(c, exports)
}

func (s *Server) exportStatusHandler(c *gin.Context) {
	st, err := s.exports.Status(c.Request.Context(), exportKey(c))
	if err != nil {
		failure(c, err)
		return
	}
	success(c, st)
}

func (s *Server) playHandler(c *gin.Context) {
	s.operateExport(c, s.tasks.Play)
}

func (s *Server) pauseHandler(c *gin.Context) {
	s.operateExport(c, s.tasks.Pause)
}

func (s *Server) operateExport(c *gin.Context, op func(ctx context.Context, key export.Key) error) {
	key := exportKey(c)
	if err := op(c.Request.Context(), key); err != nil {
		failure(c, err)
		return
	}
	st, err := s.exports.Status(c.Request.Context(), key)
	if err != nil {
		failure(c, err)
		return
	}
	success(c, st)
}

func (s *Server) scheduleHandler(c *gin.Context) {
	res, err := s.crontab.Fire(c.Request.Context(), c.Param("name"))
	if err != nil {
		failure(c, err)
		return
	}
	success(c, res)
}

func (s *Server) listEventsHandler(c *gin.Context) {
	page, pageSize, err := queryPage(c)
	if err != nil {
		failure(c, err)
		return
	}
	events, err := s.exports.ListEvents(c.Request.Context(), &export.EventFilter{
		Transaction: c.Query("transaction"),
		Export:      c.Query("export"),
		Kind:        c.Query("kind"),
	}, page, pageSize)
	if err != nil {
		failure(c, err)
		return
	}
	success(c, events)
}

func (s *Server) listTasksHandler(c *gin.Context) {
	page, pageSize, err := queryPage(c)
	if err != nil {
		failure(c, err)
		return
	}
	filter := &task.Filter{
		Transaction: c.Query("transaction"),
		Export:      c.Query("export"),
		Worker:      c.Query("worker"),
	}
	if v := c.Query("status"); v != "" {
		filter.Statuses = []string{v}
	}
	tasks, err := s.tasks.ListTask(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		failure(c, err)
		return
	}
	success(c, tasks)
}

func (s *Server) taskErrorHandler(c *gin.Context) {
	var req openapi.TaskErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, &service.InvalidInputError{Err: err})
		return
	}
	key := task.Key{Transaction: c.Param("transaction"), Export: c.Param("export"), Collection: c.Param("collection")}
	if err := s.tasks.Error(c.Request.Context(), key, &service.ErrorRequest{
		Worker: req.Worker,
		Error:  req.Error,
		Epoch:  req.Epoch,
	}); err != nil {
		failure(c, err)
		return
	}
	tasks, err := s.tasks.ListTask(c.Request.Context(), &task.Filter{
		Transaction: key.Transaction,
		Export:      key.Export,
		Collection:  key.Collection,
	}, 0, 0)
	if err != nil {
		failure(c, err)
		return
	}
	success(c, tasks)
}

// reverseProxy used for reverses request to leader
func (s *Server) reverseProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.election == nil || s.leader.Load() {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		leaderAddr, err := s.election.Leader(ctx)
		if err != nil {
			logger.Error("api request get leader error",
				zap.String("request URL", c.Request.URL.String()),
				zap.String("current addr", s.MasterOptions.ClientAddr),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, openapi.Response{
				Code:  http.StatusServiceUnavailable,
				Error: fmt.Sprintf("current leader service election action isn't finished, please wait retrying: %v", err),
			})
			return
		}

		// simpleProxy just reverse to leader host
		simpleProxy := httputil.ReverseProxy{
			Director: func(req *http.Request) {
				req.URL.Scheme = "http"
				req.URL.Host = leaderAddr
				req.Host = leaderAddr
			},
		}

		logger.Warn("reverse request to leader",
			zap.String("request URL", c.Request.URL.String()),
			zap.String("current addr", s.MasterOptions.ClientAddr),
			zap.String("forward leader", leaderAddr))

		simpleProxy.ServeHTTP(c.Writer, c.Request)
		c.Abort()
	}
}

// cors used for support cors request
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type,AccessToken,X-CSRF-Token, Authorization, Token")
		c.Header("Access-Control-Allow-Methods", "POST, GET, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")
		c.Header("Access-Control-Allow-Credentials", "true")

		// release all OPTIONS methods
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Copyright 2025 Ewout Prangsma
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
//
// Author Ewout Prangsma
//


package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/printhost/VirtualPins/pkg/gcode"
	"github.com/printhost/VirtualPins/pkg/vpin"
)

// PinValueRequest is the body of a PUT /api/pins/:name request.
type PinValueRequest struct {
	Value int `json:"value"`
}

// GCodeRequest is the body of a POST /api/gcode request.
type GCodeRequest struct {
	Command string `json:"command"`
}

// GCodeResponse is the result of a POST /api/gcode request.
type GCodeResponse struct {
	Responses []string `json:"responses"`
	Error     string   `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) getPins(c echo.Context) error {
	result, err := s.service.PinStatuses(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getPin(c echo.Context) error {
	result, err := s.service.PinStatus(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) putPin(c echo.Context) error {
	var req PinValueRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	name := c.Param("name")
	if err := s.service.SetPin(ctx, name, req.Value != 0); err != nil {
		return err
	}
	result, err := s.service.PinStatus(ctx, name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) togglePin(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")
	if _, err := s.service.TogglePin(ctx, name); err != nil {
		return err
	}
	result, err := s.service.PinStatus(ctx, name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getEndstops(c echo.Context) error {
	result, err := s.service.Endstops(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getButtonGroups(c echo.Context) error {
	result, err := s.service.ButtonGroups(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) postGCode(c echo.Context) error {
	var req GCodeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	responses, err := s.service.RunCommand(c.Request().Context(), req.Command)
	if responses == nil {
		responses = []string{}
	}
	if err != nil {
		return c.JSON(statusCode(err), GCodeResponse{
			Responses: responses,
			Error:     err.Error(),
		})
	}
	return c.JSON(http.StatusOK, GCodeResponse{Responses: responses})
}

// httpErrorHandler maps service errors onto HTTP status codes.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusCode(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorResponse{Error: msg})
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("Failed to send error response")
	}
}

// statusCode returns the HTTP status code for the given error.
func statusCode(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case vpin.IsPinNotFound(err):
		return http.StatusNotFound
	case gcode.IsUnknownCommand(err), gcode.IsInvalidParameter(err), gcode.IsMalformedCommand(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

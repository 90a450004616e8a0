package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/arloliu/go-converse/device"
	"github.com/arloliu/go-converse/register"
)

type server struct {
	port    uint
	httpLog bool
	poller  *device.Poller
}

func newServer(cfg *Config, poller *device.Poller) *http.Server {
	s := &server{port: cfg.Port, httpLog: cfg.HttpLog, poller: poller}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func (s *server) routes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.healthCheckHandler)
	e.GET("/version", s.versionHandler)
	e.GET("/devices", s.devicesHandler)
	e.GET("/devices/:name", s.deviceHandler)

	return e
}

// healthCheckHandler fails when a device has blocks and none of them
// succeeded in the last cycle.
func (s *server) healthCheckHandler(c echo.Context) error {
	for _, name := range s.poller.Devices() {
		states := s.poller.States(name)
		if len(states) == 0 {
			continue
		}
		healthy := false
		for _, st := range states {
			if st.Err == nil {
				healthy = true
				break
			}
		}
		if !healthy {
			return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
		}
	}

	return c.String(http.StatusOK, "health_check: OK")
}

func (s *server) versionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"version":  versioninfo.Short(),
		"revision": versioninfo.Revision,
		"dirty":    versioninfo.DirtyBuild,
		"time":     versioninfo.LastCommit,
	})
}

type blockView struct {
	Block   string            `json:"block"`
	Updated time.Time         `json:"updated"`
	Error   string            `json:"error,omitempty"`
	CycleID *uuid.UUID        `json:"cycle_id,omitempty"`
	Read    *time.Time        `json:"read,omitempty"`
	Retries int               `json:"retries"`
	Values  map[string]any    `json:"values,omitempty"`
	Invalid map[string]string `json:"invalid,omitempty"`
}

type deviceView struct {
	Name   string      `json:"name"`
	Blocks []blockView `json:"blocks"`
}

func newBlockView(st device.BlockState) blockView {
	v := blockView{Block: st.Block, Updated: st.Updated}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	snap := st.Snapshot
	if snap == nil {
		return v
	}

	v.CycleID = &snap.CycleID
	v.Read = &snap.Time
	v.Retries = snap.Retries
	v.Values = make(map[string]any, len(snap.Values))
	for name, val := range snap.Values {
		v.Values[name] = jsonValue(val)
	}
	if len(snap.Errors) > 0 {
		v.Invalid = make(map[string]string, len(snap.Errors))
		for name, err := range snap.Errors {
			v.Invalid[name] = err.Error()
		}
	}

	return v
}

func jsonValue(v register.Value) any {
	if n, ok := v.(register.NumberValue); ok {
		return float64(n)
	}

	return v.String()
}

func (s *server) deviceView(name string) deviceView {
	states := s.poller.States(name)
	v := deviceView{Name: name, Blocks: make([]blockView, 0, len(states))}
	for _, st := range states {
		v.Blocks = append(v.Blocks, newBlockView(st))
	}

	return v
}

func (s *server) devicesHandler(c echo.Context) error {
	names := s.poller.Devices()
	sort.Strings(names)

	views := make([]deviceView, 0, len(names))
	for _, name := range names {
		views = append(views, s.deviceView(name))
	}

	return c.JSON(http.StatusOK, views)
}

func (s *server) deviceHandler(c echo.Context) error {
	name := c.Param("name")
	for _, known := range s.poller.Devices() {
		if strings.EqualFold(known, name) {
			return c.JSON(http.StatusOK, s.deviceView(known))
		}
	}

	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown device %q", name))
}

package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/cascade"
	"github.com/iliyamo/homewatch/internal/detection"
	"github.com/iliyamo/homewatch/internal/middleware"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/topology"
)

// syncTimeout bounds requests that fan out to the device-control gateway.
const syncTimeout = 30 * time.Second

// TopologyHandler serves regions, devices and cameras.
type TopologyHandler struct {
	Topology *topology.Service
	Sync     *detection.Sync
	Cascade  *cascade.Engine
	Log      *zap.Logger
}

// ----- DTOs -----

type regionReq struct {
	Nombre        *string              `json:"nombre"`
	Direccion     *string              `json:"direccion"`
	Ciudad        *string              `json:"ciudad"`
	ModoDeteccion *model.DetectionMode `json:"modoDeteccion"`
}

type regionResp struct {
	Region *model.Region     `json:"region"`
	Sync   *detection.Report `json:"sincronizacion,omitempty"`
}

type deviceReq struct {
	Nombre     *string `json:"nombre"`
	MACAddress *string `json:"macAddress"`
	Activo     *bool   `json:"activo"`
}

type cameraReq struct {
	Nombre    *string `json:"nombre"`
	StreamURL *string `json:"streamUrl"`
	Tipo      *string `json:"tipo"`
	Activo    *bool   `json:"activo"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ----- regions -----

// Regions lists the acting user's regions.
func (h *TopologyHandler) Regions(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	list, err := h.Topology.Regions(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// CreateRegion adds a region in the default detection mode.
func (h *TopologyHandler) CreateRegion(c echo.Context) error {
	var req regionReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	r, err := h.Topology.CreateRegion(ctx, middleware.UserID(c), topology.NewRegion{
		Nombre:    deref(req.Nombre),
		Direccion: deref(req.Direccion),
		Ciudad:    deref(req.Ciudad),
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// UpdateRegion applies a partial update.  A mode change is pushed to every
// device of the region and the per-device outcome is returned alongside.
func (h *TopologyHandler) UpdateRegion(c echo.Context) error {
	var req regionReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, syncTimeout)
	defer cancel()

	r, report, err := h.Sync.UpdateRegion(ctx, middleware.UserID(c), c.Param("id_reg"), detection.RegionPatch{
		Nombre:        req.Nombre,
		Direccion:     req.Direccion,
		Ciudad:        req.Ciudad,
		ModoDeteccion: req.ModoDeteccion,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, regionResp{Region: r, Sync: report})
}

// DeleteRegion removes a region with its devices and cameras.
func (h *TopologyHandler) DeleteRegion(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	if err := h.Cascade.DeleteRegion(ctx, c.Param("id_reg"), middleware.UserID(c)); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- devices -----

// Devices lists the devices of a region.
func (h *TopologyHandler) Devices(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	list, err := h.Topology.Devices(ctx, middleware.UserID(c), c.Param("id_reg"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// AddDevice registers a device in a region.
func (h *TopologyHandler) AddDevice(c echo.Context) error {
	var req deviceReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, syncTimeout)
	defer cancel()

	d, err := h.Sync.AddDevice(ctx, middleware.UserID(c), c.Param("id_reg"), detection.NewDevice{
		Nombre:     deref(req.Nombre),
		MACAddress: deref(req.MACAddress),
		Activo:     req.Activo,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, d)
}

// UpdateDevice applies a partial update to a device.
func (h *TopologyHandler) UpdateDevice(c echo.Context) error {
	var req deviceReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	d, err := h.Topology.UpdateDevice(ctx, middleware.UserID(c), c.Param("id_reg"), c.Param("id_disp"), topology.DevicePatch{
		Nombre:     req.Nombre,
		MACAddress: req.MACAddress,
		Activo:     req.Activo,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}

// DeleteDevice removes a device and its camera.
func (h *TopologyHandler) DeleteDevice(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	err := h.Cascade.DeleteDevice(ctx, c.Param("id_disp"), c.Param("id_reg"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- cameras -----

// Camera returns the camera of a device, or null when it has none.
func (h *TopologyHandler) Camera(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	cam, err := h.Topology.Camera(ctx, middleware.UserID(c), c.Param("id_reg"), c.Param("id_disp"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"camara": cam})
}

// AddCamera attaches a camera after the gateway confirms activation.
func (h *TopologyHandler) AddCamera(c echo.Context) error {
	var req cameraReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, syncTimeout)
	defer cancel()

	cam, err := h.Sync.AddCamera(ctx, middleware.UserID(c), c.Param("id_reg"), c.Param("id_disp"), detection.NewCamera{
		Nombre:    deref(req.Nombre),
		StreamURL: deref(req.StreamURL),
		Tipo:      deref(req.Tipo),
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, cam)
}

// UpdateCamera applies a partial update to a camera.
func (h *TopologyHandler) UpdateCamera(c echo.Context) error {
	var req cameraReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	cam, err := h.Topology.UpdateCamera(ctx, middleware.UserID(c), c.Param("id_cam"), topology.CameraPatch{
		Nombre:    req.Nombre,
		StreamURL: req.StreamURL,
		Tipo:      req.Tipo,
		Activo:    req.Activo,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, cam)
}

// DeleteCamera detaches and removes a camera.
func (h *TopologyHandler) DeleteCamera(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	if err := h.Cascade.DeleteCamera(ctx, c.Param("id_cam"), middleware.UserID(c)); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

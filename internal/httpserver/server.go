package httpserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/wearable-server/internal/config"
	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/driverapi"
	"github.com/taoyao-code/wearable-server/internal/health"
	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
	"github.com/taoyao-code/wearable-server/internal/session"
	"github.com/taoyao-code/wearable-server/internal/storage"
)

// WeatherSink 天气快照写入口
type WeatherSink interface {
	Update(info *appmsg.WeatherInfo)
}

// FrameHandler 入站消息入口。生产部署由宿主传输层直接调用，
// 这里同时经 HTTP 暴露一条调试/集成通道。
type FrameHandler interface {
	HandleFrame(ctx context.Context, deviceID coremodel.DeviceID, kind uint16, payload []byte) error
}

// API 管理接口依赖集合，字段可按部署裁剪（nil 则对应路由不注册）
type API struct {
	Repo     storage.DeviceRepo
	Sessions *session.Manager
	Commands driverapi.CommandSource
	Weather  WeatherSink
	Frames   FrameHandler
	Log      *zap.Logger
}

// Server HTTP 服务封装
type Server struct {
	srv *http.Server
}

// New 创建并配置 Gin + HTTP Server，注册健康检查、指标与管理路由
func New(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, readyFn func() bool, agg *health.Aggregator, api *API) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if readyFn == nil || readyFn() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}
	if agg != nil {
		health.RegisterHTTPRoutes(r, agg)
	}
	if api != nil {
		api.register(r)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (a *API) register(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	if a.Repo != nil {
		v1.GET("/devices", a.listDevices)
		v1.GET("/devices/:id", a.getDevice)
		v1.GET("/devices/:id/apps", a.listDeviceApps)
		v1.GET("/devices/:id/sleep", a.listSleepRecords)
	}
	if a.Commands != nil {
		v1.POST("/devices/:id/apps/:uuid/start", a.startApp)
		v1.POST("/devices/:id/apps/:uuid/message", a.sendAppMessage)
	}
	if a.Weather != nil {
		v1.POST("/weather", a.updateWeather)
	}
	if a.Frames != nil {
		v1.POST("/devices/:id/frames", a.ingestFrame)
	}
}

func (a *API) ingestFrame(c *gin.Context) {
	deviceID := coremodel.DeviceID(c.Param("id"))

	var body struct {
		Kind    uint16 `json:"kind" binding:"required"`
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := hex.DecodeString(body.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be hex encoded"})
		return
	}

	if err := a.Frames.HandleFrame(c.Request.Context(), deviceID, body.Kind, payload); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "routed"})
}

func (a *API) listDevices(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	devices, err := a.Repo.ListDevices(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	items := make([]gin.H, 0, len(devices))
	for _, d := range devices {
		item := gin.H{
			"phy_id":       d.PhyID,
			"last_seen_at": d.LastSeenAt,
		}
		if d.FirmwareVersion != nil {
			item["firmware_version"] = *d.FirmwareVersion
		}
		if d.HardwareModel != nil {
			item["hardware_model"] = *d.HardwareModel
		}
		if d.BatteryLevel != nil {
			item["battery_level"] = *d.BatteryLevel
		}
		if a.Sessions != nil {
			item["online"] = a.Sessions.IsOnline(coremodel.DeviceID(d.PhyID), now)
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"devices": items, "count": len(items)})
}

func (a *API) getDevice(c *gin.Context) {
	phyID := c.Param("id")
	device, err := a.Repo.GetDeviceByPhyID(c.Request.Context(), phyID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	resp := gin.H{
		"phy_id":       device.PhyID,
		"last_seen_at": device.LastSeenAt,
		"battery_low":  device.BatteryLow,
		"created_at":   device.CreatedAt,
	}
	if device.FirmwareVersion != nil {
		resp["firmware_version"] = *device.FirmwareVersion
	}
	if device.HardwareModel != nil {
		resp["hardware_model"] = *device.HardwareModel
	}
	if device.BatteryLevel != nil {
		resp["battery_level"] = *device.BatteryLevel
	}
	if device.BatteryState != nil {
		resp["battery_state"] = *device.BatteryState
	}
	if device.LastChargeAt != nil {
		resp["last_charge_at"] = *device.LastChargeAt
	}
	if device.ChargeCycles != nil {
		resp["charge_cycles"] = *device.ChargeCycles
	}
	if a.Sessions != nil {
		resp["online"] = a.Sessions.IsOnline(coremodel.DeviceID(device.PhyID), time.Now())
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) listDeviceApps(c *gin.Context) {
	phyID := c.Param("id")
	apps, err := a.Repo.ListApps(c.Request.Context(), phyID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	items := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		items = append(items, gin.H{
			"uuid":    app.AppUUID,
			"name":    app.Name,
			"creator": app.Creator,
			"kind":    app.Kind,
		})
	}
	c.JSON(http.StatusOK, gin.H{"apps": items, "count": len(items)})
}

func (a *API) listSleepRecords(c *gin.Context) {
	phyID := c.Param("id")
	limit := intQuery(c, "limit", 20)

	records, err := a.Repo.ListRecentSleepRecords(c.Request.Context(), phyID, limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	items := make([]gin.H, 0, len(records))
	for _, rec := range records {
		items = append(items, gin.H{
			"recording_base": rec.RecordingBase,
			"point_count":    rec.PointCount,
			"points":         json.RawMessage(rec.Points),
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": items, "count": len(items)})
}

func (a *API) startApp(c *gin.Context) {
	deviceID := coremodel.DeviceID(c.Param("id"))
	appUUID, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app uuid"})
		return
	}

	if err := a.Commands.StartApp(c.Request.Context(), deviceID, appUUID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (a *API) sendAppMessage(c *gin.Context) {
	deviceID := coremodel.DeviceID(c.Param("id"))
	appUUID, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app uuid"})
		return
	}

	var body struct {
		Values map[string]interface{} `json:"values" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.Commands.SendNamedValues(c.Request.Context(), deviceID, appUUID, normalizeValues(body.Values)); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (a *API) updateWeather(c *gin.Context) {
	var body struct {
		Timestamp     int64  `json:"timestamp"`
		Location      string `json:"location"`
		ConditionCode int32  `json:"condition_code" binding:"required"`
		TemperatureK  int32  `json:"temperature_k" binding:"required"`
		TodayMaxK     int32  `json:"today_max_k"`
		TodayMinK     int32  `json:"today_min_k"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	at := time.Now()
	if body.Timestamp > 0 {
		at = time.Unix(body.Timestamp, 0)
	}
	a.Weather.Update(&appmsg.WeatherInfo{
		Timestamp:     at,
		Location:      body.Location,
		ConditionCode: body.ConditionCode,
		TemperatureK:  body.TemperatureK,
		TodayMaxK:     body.TodayMaxK,
		TodayMinK:     body.TodayMinK,
	})
	if a.Log != nil {
		a.Log.Info("weather snapshot updated",
			zap.Int32("condition_code", body.ConditionCode),
			zap.Int32("temperature_k", body.TemperatureK))
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// normalizeValues JSON 数字默认解析为 float64，线协议不接受浮点，
// 这里把整数值的 float64 收敛为 int32
func normalizeValues(values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if f, ok := v.(float64); ok && f == float64(int32(f)) {
			out[k] = int32(f)
			continue
		}
		out[k] = v
	}
	return out
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
